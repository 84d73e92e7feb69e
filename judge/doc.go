// Package judge decides whether two memories logically conflict and
// whether a proposed deletion is justified.
//
// The underlying decision process is a model call, so every verdict can
// fail (timeout, unreachable backend, unparseable response). The package
// contract is fail-closed: an uncertain or failed judgment always comes
// back as "no contradiction" / "deletion rejected", protecting memories
// over removing them. Losing a true memory is worse than briefly
// retaining a stale one.
//
// Verdicts for identical (existing, candidate, context) triples are
// cached so repeated pair checks during reconcile and sweep don't
// re-bill the model.
package judge
