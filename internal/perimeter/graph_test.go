package perimeter

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func pct(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func ptr(v int64) *int64 { return &v }

func rootEntity(id int64, code string) Entity {
	return Entity{
		ID:                id,
		Code:              code,
		Currency:          "EUR",
		IsParent:          true,
		Active:            true,
		ControlType:       ControlExclusive,
		TotalOwnershipPct: pct("100"),
	}
}

func subsidiary(id, parent int64, code string, direct, indirect, total string, control ControlType) Entity {
	return Entity{
		ID:                   id,
		Code:                 code,
		Currency:             "USD",
		ParentEntityID:       ptr(parent),
		DirectOwnershipPct:   pct(direct),
		IndirectOwnershipPct: pct(indirect),
		TotalOwnershipPct:    pct(total),
		ControlType:          control,
		Active:               true,
	}
}

func TestBuildGraphValid(t *testing.T) {
	g, err := BuildGraph([]Entity{
		rootEntity(1, "HOLD"),
		subsidiary(2, 1, "SUB-A", "70", "10", "80", ControlExclusive),
		subsidiary(3, 2, "SUB-B", "60", "0", "60", ControlExclusive),
	})
	require.NoError(t, err)
	require.Equal(t, []int64{1}, g.Roots())
	require.Equal(t, []int64{2}, g.Children(1))

	var order []string
	g.Walk(func(e Entity) { order = append(order, e.Code) })
	require.Equal(t, []string{"HOLD", "SUB-A", "SUB-B"}, order)
}

func TestBuildGraphRejectsCycle(t *testing.T) {
	a := subsidiary(1, 2, "A", "50", "10", "60", ControlExclusive)
	b := subsidiary(2, 1, "B", "50", "10", "60", ControlExclusive)
	_, err := BuildGraph([]Entity{a, b})
	require.ErrorIs(t, err, ErrInvalidOwnershipGraph)
}

func TestBuildGraphRejectsMissingRoot(t *testing.T) {
	e := subsidiary(1, 1, "A", "50", "10", "60", ControlExclusive)
	e.ParentEntityID = nil
	e.IsParent = false
	_, err := BuildGraph([]Entity{e})
	require.ErrorIs(t, err, ErrInvalidOwnershipGraph)
}

func TestBuildGraphRejectsOwnershipDrift(t *testing.T) {
	_, err := BuildGraph([]Entity{
		rootEntity(1, "HOLD"),
		subsidiary(2, 1, "SUB", "70", "10", "85", ControlExclusive),
	})
	require.ErrorIs(t, err, ErrInvalidOwnershipGraph)
}

func TestResolveMethodThresholds(t *testing.T) {
	cases := []struct {
		name    string
		entity  Entity
		want    Method
		wantErr error
	}{
		{
			name:   "exclusive control is full",
			entity: subsidiary(2, 1, "S", "70", "10", "80", ControlExclusive),
			want:   MethodFull,
		},
		{
			name:   "joint control is proportional",
			entity: subsidiary(2, 1, "S", "50", "0", "50", ControlJoint),
			want:   MethodProportional,
		},
		{
			name:   "significant influence between thresholds is equity",
			entity: subsidiary(2, 1, "S", "30", "5", "35", ControlSignificantInfluence),
			want:   MethodEquity,
		},
		{
			name:   "no control below threshold is not consolidated",
			entity: subsidiary(2, 1, "S", "10", "0", "10", ControlNone),
			want:   MethodNotConsolidated,
		},
		{
			name:    "significant influence above 50 is ambiguous",
			entity:  subsidiary(2, 1, "S", "60", "0", "60", ControlSignificantInfluence),
			wantErr: ErrAmbiguousControl,
		},
		{
			name:    "significant influence below 20 is ambiguous",
			entity:  subsidiary(2, 1, "S", "10", "0", "10", ControlSignificantInfluence),
			wantErr: ErrAmbiguousControl,
		},
		{
			name:    "no control above 50 is ambiguous",
			entity:  subsidiary(2, 1, "S", "60", "0", "60", ControlNone),
			wantErr: ErrAmbiguousControl,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ResolveMethod(tc.entity)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestResolveMethodExplicitOverrideCrossChecked(t *testing.T) {
	e := subsidiary(2, 1, "S", "70", "10", "80", ControlExclusive)
	e.Method = MethodEquity
	_, err := ResolveMethod(e)
	require.ErrorIs(t, err, ErrAmbiguousControl)

	e.Method = MethodFull
	got, err := ResolveMethod(e)
	require.NoError(t, err)
	require.Equal(t, MethodFull, got)
}

func TestMinorityShare(t *testing.T) {
	// 70% direct + 10% indirect, exclusive control: full method, 20% minority.
	e := subsidiary(2, 1, "B", "70", "10", "80", ControlExclusive)
	method, err := ResolveMethod(e)
	require.NoError(t, err)
	require.Equal(t, MethodFull, method)
	require.True(t, MinorityShare(e).Equal(pct("0.2")), "got %s", MinorityShare(e))

	// equity-method entity carries no minority interest line
	eq := subsidiary(3, 1, "C", "30", "0", "30", ControlSignificantInfluence)
	require.True(t, MinorityShare(eq).IsZero())
}

func TestInScopeSkipsInactiveAndUnconsolidated(t *testing.T) {
	inactive := subsidiary(3, 1, "OLD", "70", "0", "70", ControlExclusive)
	inactive.Active = false
	g, err := BuildGraph([]Entity{
		rootEntity(1, "HOLD"),
		subsidiary(2, 1, "SUB", "70", "10", "80", ControlExclusive),
		inactive,
		subsidiary(4, 1, "MIN", "10", "0", "10", ControlNone),
	})
	require.NoError(t, err)

	scope := g.InScope()
	codes := make([]string, 0, len(scope))
	for _, e := range scope {
		codes = append(codes, e.Code)
	}
	require.Equal(t, []string{"HOLD", "SUB"}, codes)
}
