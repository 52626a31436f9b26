package harness

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/repokit/internal/testutil"
)

func sampleTrace() []TraceEvent {
	r := NewResult()
	r.AddInvocationTrace("MemberRepository.findByAge", []any{int64(10)}, 1)
	r.AddCompletionTrace("MemberRepository.findByAge", OutcomeOK, map[string]any{"kind": "page"}, 2)
	r.AddInvocationTrace("MemberRepository.findByUsername", []any{"nobody"}, 3)
	r.AddCompletionTrace("MemberRepository.findByUsername", "NO_RESULT", nil, 4)
	r.AddInvocationTrace("MemberRepository.findByAge", []any{int64(20)}, 5)
	r.AddCompletionTrace("MemberRepository.findByAge", OutcomeOK, map[string]any{"kind": "page"}, 6)
	return r.Trace
}

func TestAssertTraceContains(t *testing.T) {
	trace := sampleTrace()
	tests := []struct {
		name      string
		assertion Assertion
		wantErr   bool
	}{
		{name: "method only", assertion: Assertion{Method: "MemberRepository.findByAge"}},
		{name: "args", assertion: Assertion{Method: "MemberRepository.findByAge", Args: []any{20}}},
		{name: "args and outcome", assertion: Assertion{Method: "MemberRepository.findByUsername", Args: []any{"nobody"}, Outcome: "NO_RESULT"}},
		{name: "wrong args", assertion: Assertion{Method: "MemberRepository.findByAge", Args: []any{30}}, wantErr: true},
		{name: "wrong outcome", assertion: Assertion{Method: "MemberRepository.findByUsername", Outcome: OutcomeOK}, wantErr: true},
		{name: "absent", assertion: Assertion{Method: "TeamRepository.findByName"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertTraceContains(trace, tt.assertion)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var ae *AssertionError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, AssertTraceContains, ae.Type)
			assert.Contains(t, err.Error(), "Full trace:")
		})
	}
}

func TestAssertTraceOrder(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceOrder(trace, Assertion{Methods: []string{
		"MemberRepository.findByAge", "MemberRepository.findByUsername",
	}}))

	err := assertTraceOrder(trace, Assertion{Methods: []string{
		"MemberRepository.findByUsername", "MemberRepository.findByAge",
	}})
	assert.ErrorContains(t, err, "should be before")

	err = assertTraceOrder(trace, Assertion{Methods: []string{"MemberRepository.deleteByAge"}})
	assert.ErrorContains(t, err, "missing method: MemberRepository.deleteByAge")
}

func TestAssertTraceCount(t *testing.T) {
	trace := sampleTrace()
	assert.NoError(t, assertTraceCount(trace, Assertion{Method: "MemberRepository.findByAge", Count: 2}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Method: "TeamRepository.findByName", Count: 0}))
	assert.ErrorContains(t, assertTraceCount(trace, Assertion{Method: "MemberRepository.findByAge", Count: 1}), "2 invocations")
}

func TestAssertFinalState(t *testing.T) {
	reg := testutil.Registry(t)
	st := testutil.OpenStore(t, reg)
	testutil.SeedMembers(t, st, 10, 20, 20)
	ctx := context.Background()

	tests := []struct {
		name      string
		assertion Assertion
		wantErr   string
	}{
		{
			name:      "single row",
			assertion: Assertion{Entity: "Member", Where: map[string]any{"age": 10}, Expect: map[string]any{"username": "member1", "active": true}},
		},
		{
			name:      "row count",
			assertion: Assertion{Entity: "Member", Where: map[string]any{"age": 20}, Rows: ptr(2)},
		},
		{
			name:      "association column",
			assertion: Assertion{Entity: "Member", Where: map[string]any{"team": 2}, Rows: ptr(1), Expect: map[string]any{"username": "member3"}},
		},
		{
			name:      "null association",
			assertion: Assertion{Entity: "Member", Where: map[string]any{"team": nil}, Rows: ptr(0)},
		},
		{
			name:      "value mismatch",
			assertion: Assertion{Entity: "Member", Where: map[string]any{"age": 10}, Expect: map[string]any{"username": "member2"}},
			wantErr:   `field "username" = member2`,
		},
		{
			name:      "ambiguous",
			assertion: Assertion{Entity: "Member", Where: map[string]any{"age": 20}, Expect: map[string]any{"age": 20}},
			wantErr:   "multiple rows matched",
		},
		{
			name:      "not found",
			assertion: Assertion{Entity: "Member", Where: map[string]any{"age": 99}, Expect: map[string]any{"age": 99}},
			wantErr:   "row not found",
		},
		{
			name:      "wrong row count",
			assertion: Assertion{Entity: "Member", Rows: ptr(1)},
			wantErr:   "3 row(s)",
		},
		{
			name:      "unknown entity",
			assertion: Assertion{Entity: "Nope", Rows: ptr(1)},
			wantErr:   `unknown entity "Nope"`,
		},
		{
			name:      "unknown property",
			assertion: Assertion{Entity: "Member", Where: map[string]any{"age; DROP TABLE member": 1}, Rows: ptr(0)},
			wantErr:   "has no property or to-one association",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertFinalState(ctx, st, reg, tt.assertion)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestStateValuesEqual(t *testing.T) {
	tests := []struct {
		expected, actual any
		want             bool
	}{
		{"a", "a", true},
		{"a", []byte("a"), true},
		{10, int64(10), true},
		{int64(10), int64(11), false},
		{true, int64(1), true},
		{false, int64(1), false},
		{nil, nil, true},
		{nil, int64(0), false},
		{"10", int64(10), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, stateValuesEqual(tt.expected, tt.actual), "%v vs %v", tt.expected, tt.actual)
	}
}

func TestEvaluateAssertions(t *testing.T) {
	result := &Result{Trace: sampleTrace()}
	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertTraceCount, Method: "MemberRepository.findByAge", Count: 2},
		{Type: AssertTraceCount, Method: "MemberRepository.findByAge", Count: 5},
		{Type: AssertFinalState, Entity: "Member", Rows: ptr(0)},
		{Type: "bogus"},
	}, nil)
	require.Len(t, errs, 3)
	assert.True(t, strings.Contains(errs[0], "5 invocations of MemberRepository.findByAge"))
	assert.Contains(t, errs[1], "requires database context")
	assert.Contains(t, errs[2], `unknown assertion type "bogus"`)
}
