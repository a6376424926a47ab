package linreg

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFamilyRoundTrip(t *testing.T) {
	for _, f := range []Family{FAMILY_OLS, FAMILY_IV, FAMILY_POISSON} {
		require.Equal(t, f, GetMyFamily(f.String()))
	}
	require.Equal(t, FAMILY_ERROR, GetMyFamily("logit"))
	require.Equal(t, "ERROR", FAMILY_ERROR.String())

	// 每个合法族都有能力表条目
	for _, f := range []Family{FAMILY_OLS, FAMILY_IV, FAMILY_POISSON} {
		_, ok := familyCapsTable[f]
		require.True(t, ok, "family %v missing from capability table", f)
	}
	_, ok := familyCapsTable[FAMILY_ERROR]
	require.False(t, ok)
}

func TestVcovKindDetailString(t *testing.T) {
	require.Equal(t, "iid", VCOV_IID.String())
	require.Equal(t, "hetero", VCOV_HETERO.String())
	require.Equal(t, "CRV", VCOV_CRV.String())
	require.Equal(t, "HC2", DETAIL_HC2.String())
	require.Equal(t, "CRV3", DETAIL_CRV3.String())
	require.Equal(t, "ERROR", VcovKind(99).String())
	require.Equal(t, "ERROR", VcovDetail(99).String())
}
