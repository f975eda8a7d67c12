package tokens

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/hxuan190/dex-aggregator/internal/domain"
)

var (
	icrc1 = domain.StandardICRC1
	icrc2 = domain.StandardICRC2
)

func TestCanonicalStandards(t *testing.T) {
	tests := []struct {
		name  string
		names []string
		want  []domain.Standard
	}{
		{"spellings collapse", []string{"ICRC-1", "icrc1", "ICRC_2", " icrc-2 "}, []domain.Standard{icrc2, icrc1}},
		{"unknown names dropped", []string{"ICRC-3", "DIP20", "ICRC-1"}, []domain.Standard{icrc1}},
		{"nothing recognizable", []string{"ICRC-7"}, []domain.Standard{icrc1}},
		{"empty", nil, []domain.Standard{icrc1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanonicalStandards(tt.names))
		})
	}
}

func TestResolveStandard(t *testing.T) {
	both := []domain.Standard{icrc2, icrc1}
	tests := []struct {
		name       string
		token      []domain.Standard
		dex        []domain.Standard
		preference domain.Standard
		want       domain.Standard
		wantErr    bool
	}{
		{"approve style preferred", both, both, "", icrc2, false},
		{"preference honored", both, both, icrc1, icrc1, false},
		{"unsupported preference ignored", []domain.Standard{icrc1}, both, icrc2, icrc1, false},
		{"dex limits choice", both, []domain.Standard{icrc1}, "", icrc1, false},
		{"no overlap", []domain.Standard{icrc1}, []domain.Standard{icrc2}, "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := &domain.TokenInfo{LedgerID: "l", Standards: tt.token}
			got, err := ResolveStandard(info, tt.dex, tt.preference)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrIncompatibleStandard)
				assert.False(t, Compatible(info, tt.dex))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, Compatible(info, tt.dex))
		})
	}

	_, err := ResolveStandard(nil, both, "")
	assert.ErrorIs(t, err, ErrIncompatibleStandard)
}

func TestResolveStandardProperties(t *testing.T) {
	stds := rapid.SliceOfDistinct(rapid.SampledFrom([]domain.Standard{icrc1, icrc2}), func(s domain.Standard) domain.Standard { return s })
	rapid.Check(t, func(t *rapid.T) {
		token := stds.Draw(t, "token")
		dex := stds.Draw(t, "dex")
		pref := rapid.SampledFrom([]domain.Standard{"", icrc1, icrc2}).Draw(t, "pref")
		info := &domain.TokenInfo{LedgerID: "l", Standards: token}

		got, err := ResolveStandard(info, dex, pref)
		again, err2 := ResolveStandard(info, dex, pref)
		if got != again || (err == nil) != (err2 == nil) {
			t.Fatalf("not deterministic: %v/%v vs %v/%v", got, err, again, err2)
		}
		common := Intersection(token, dex)
		if len(common) == 0 {
			if err == nil {
				t.Fatalf("expected error for %v vs %v", token, dex)
			}
			return
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !slices.Contains(common, got) {
			t.Fatalf("%s not supported by both sides", got)
		}
		if pref != "" && slices.Contains(common, pref) && got != pref {
			t.Fatalf("preference %s ignored, got %s", pref, got)
		}
	})
}
