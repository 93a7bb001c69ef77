package core

import (
	"fmt"
	"io"
	"maps"
	"runtime/debug"
	"slices"
	"strings"

	"github.com/agnivade/levenshtein"
	"go.uber.org/zap"
)

// MustFprintf is a wrapper around fmt.Fprintf that exits the program if it fails.
func MustFprintf(w io.Writer, format string, a ...any) {
	_, err := fmt.Fprintf(w, format, a...)
	if err != nil {
		zap.L().Fatal("Failed to fprintf", zap.Error(err), zap.String("format", format), zap.Any("a", a))
	}
}

// JoinMapKeys joins the keys of a map into a sorted, comma-separated string.
// Useful for error messages that need to list valid values.
func JoinMapKeys[T comparable](m map[T]struct{}) string {
	keys := slices.Collect(maps.Keys(m))
	sliceStrings := make([]string, len(keys))
	for i, k := range keys {
		sliceStrings[i] = fmt.Sprintf("%v", k)
	}
	slices.Sort(sliceStrings)
	return strings.Join(sliceStrings, ", ")
}

// LogDeferredError runs a cleanup function and logs its error, for use with defer.
func LogDeferredError(fn func() error) {
	if err := fn(); err != nil {
		zap.L().Error("Deferred error", zap.Error(err), zap.Stack("stack"))
	}
}

// LogPanicRecovery logs a recovered panic together with the goroutine stack.
func LogPanicRecovery(component string, recovered any) {
	zap.L().Error("Panic recovered",
		zap.String("component", component),
		zap.Any("panic_value", recovered),
		zap.ByteString("stack", debug.Stack()))
}

// SuggestSimilarName finds the most similar candidate for typo detection using Levenshtein distance.
// It returns "" when nothing is within a distance of 2.
func SuggestSimilarName(candidates []string, name string) string {
	var best string
	bestDistance := 3

	nameLower := strings.ToLower(name)
	for _, candidate := range candidates {
		distance := levenshtein.ComputeDistance(nameLower, strings.ToLower(candidate))
		if distance < bestDistance {
			bestDistance = distance
			best = candidate
		}
	}

	return best
}
