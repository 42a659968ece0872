package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/dshills/hookline/internal/hook"
)

func TestCollectorObservesEngine(t *testing.T) {
	c := NewCollector()
	reg := hook.NewRegistry()
	eng := hook.NewEngine(reg, hook.WithObserver(c))

	ok := func(call *hook.Call, next hook.Next) { next(nil, 1) }
	fail := func(call *hook.Call, next hook.Next) { next(errors.New("boom"), nil) }
	if err := reg.Register("save", hook.Many(ok, ok), 0); err != nil {
		t.Fatal(err)
	}
	if err := reg.RegisterPhase(hook.PhasePre, "save", hook.Single(ok), 0); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register("broken", hook.Single(fail), 0); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if _, err := eng.Run(ctx, "save", nil, nil, hook.AllPhases()); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Run(ctx, "broken", nil, nil, hook.OnlyPhase(hook.PhaseMain)); err == nil {
		t.Fatal("broken hook should fail")
	}

	if got := testutil.ToFloat64(c.handlerCalls.WithLabelValues("save", "main")); got != 2 {
		t.Errorf("save/main calls = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.handlerCalls.WithLabelValues("save", "pre")); got != 1 {
		t.Errorf("save/pre calls = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.executions.WithLabelValues("save", "all", "ok")); got != 1 {
		t.Errorf("save executions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.executions.WithLabelValues("broken", "main", "error")); got != 1 {
		t.Errorf("broken executions = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(c.duration); n != 2 {
		t.Errorf("duration series = %d, want 2", n)
	}
}

func TestReloaded(t *testing.T) {
	c := NewCollector()
	c.Reloaded(false, nil)
	c.Reloaded(false, errors.New("bad file"))
	c.Reloaded(true, nil)

	want := `
# HELP hookline_reloads_total Hook file reloads seen by the watcher, by action and outcome.
# TYPE hookline_reloads_total counter
hookline_reloads_total{action="load",outcome="error"} 1
hookline_reloads_total{action="load",outcome="ok"} 1
hookline_reloads_total{action="unload",outcome="ok"} 1
`
	if err := testutil.CollectAndCompare(c.reloads, strings.NewReader(want)); err != nil {
		t.Error(err)
	}
}

func TestTrackRegistry(t *testing.T) {
	c := NewCollector()
	reg := hook.NewRegistry()
	c.TrackRegistry(reg)

	noop := func(call *hook.Call, next hook.Next) { next(nil, nil) }
	if err := reg.Register("a", hook.Many(noop, noop), 0); err != nil {
		t.Fatal(err)
	}
	if err := reg.RegisterPhase(hook.PhasePost, "a", hook.Single(noop), 0); err != nil {
		t.Fatal(err)
	}

	want := `
# HELP hookline_registered_handlers Handlers currently registered, by phase.
# TYPE hookline_registered_handlers gauge
hookline_registered_handlers{phase="main"} 2
hookline_registered_handlers{phase="post"} 1
hookline_registered_handlers{phase="pre"} 0
`
	if err := testutil.GatherAndCompare(c.Registry(), strings.NewReader(want), "hookline_registered_handlers"); err != nil {
		t.Error(err)
	}
}

func TestHandler(t *testing.T) {
	c := NewCollector()
	c.ExecutionDone("x", "all", nil, time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `hookline_executions_total{hook="x",mode="all",outcome="ok"} 1`) {
		t.Errorf("body missing execution counter:\n%s", rec.Body.String())
	}
}

func TestTrackRegistryLimitsHookLabel(t *testing.T) {
	c := NewCollector()
	reg := hook.NewRegistry()
	c.TrackRegistry(reg)
	eng := hook.NewEngine(reg, hook.WithObserver(c))

	ok := func(call *hook.Call, next hook.Next) { next(nil, nil) }
	if err := reg.Register("known", hook.Single(ok), 0); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	for _, name := range []string{"known", "random-1", "random-2", "random-3"} {
		if _, err := eng.Run(ctx, name, nil, nil, hook.AllPhases()); err != nil {
			t.Fatal(err)
		}
	}

	if got := testutil.ToFloat64(c.executions.WithLabelValues("known", "all", "ok")); got != 1 {
		t.Errorf("known executions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.executions.WithLabelValues(unregisteredLabel, "all", "ok")); got != 3 {
		t.Errorf("unregistered executions = %v, want 3", got)
	}
	if n := testutil.CollectAndCount(c.executions); n != 2 {
		t.Errorf("execution series = %d, want 2", n)
	}
}
