// Package plugin loads hook handlers from a directory of Lua files.
//
// File names follow the convention
//
//	<name>[-<phase>][-<priority>].lua
//
// where phase is pre, main or post and priority is a decimal integer. A
// missing or unknown phase means main; a missing priority means 0. Files that
// do not match are skipped.
//
// Each file runs once in its own sandboxed Lua state and must return one of:
//
//	-- a single handler
//	return function(ctx, user, next, prev) next(nil, "ok") end
//
//	-- a list of handlers, run in order
//	return { first, second }
//
//	-- a bundle of phases for the file's hook name
//	return { pre = check, main = { a, b }, post = done }
//
// Handlers are called as fn(ctx, args..., next, prev). ctx is the execution
// context value, args are the hook arguments, prev is the previous handler's
// result. A handler finishes by calling next(err, result). next is only valid
// while the handler is running: Lua has no way to continue later, so a
// handler that returns without calling next stalls its pipeline.
//
// Hook files may require("hookline") for logging helpers and phase names.
//
// # Watching
//
// Loader.Watch keeps the registry in sync with the directory. A changed file
// replaces the handlers it registered; a removed file drops them.
package plugin
