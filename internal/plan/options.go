package plan

import (
	"fmt"
	"strconv"

	"github.com/roach88/repokit/internal/queryir"
)

// Recognised provider hints.
const (
	HintReadOnly = "readOnly"
	HintTimeout  = "timeout"
)

// bindOptions attaches the lock mode and hints.
func (b *binder) bindOptions(spec *QuerySpec) error {
	decl := b.decl
	lock, err := queryir.ParseLockMode(decl.Lock)
	if err != nil {
		return &ConflictingQueryOptionsError{Method: decl.Name, Reason: err.Error()}
	}
	spec.Lock = lock

	hints, err := b.checkHints()
	if err != nil {
		return err
	}
	spec.Hints = hints
	if decl.HintsForCounting && hints != nil {
		spec.CountHints = copyHints(hints)
	}

	if lock == queryir.LockPessimisticWrite && hints[HintReadOnly] == "true" {
		return &ConflictingQueryOptionsError{Method: decl.Name, Reason: "PESSIMISTIC_WRITE lock with readOnly=true"}
	}
	return nil
}

func (b *binder) checkHints() (map[string]string, error) {
	decl := b.decl
	if len(decl.Hints) == 0 {
		return nil, nil
	}
	hints := copyHints(decl.Hints)
	// known hints are stored in canonical form ("TRUE" and "1" become "true")
	if v, ok := hints[HintReadOnly]; ok {
		readOnly, err := strconv.ParseBool(v)
		if err != nil {
			return nil, &InvalidDeclarationError{Method: decl.Name, Field: "hints." + HintReadOnly, Reason: fmt.Sprintf("%q is not a bool", v)}
		}
		hints[HintReadOnly] = strconv.FormatBool(readOnly)
	}
	if v, ok := hints[HintTimeout]; ok {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return nil, &InvalidDeclarationError{Method: decl.Name, Field: "hints." + HintTimeout, Reason: fmt.Sprintf("%q is not a positive number of milliseconds", v)}
		}
		hints[HintTimeout] = strconv.Itoa(ms)
	}
	return hints, nil
}

func copyHints(h map[string]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}
