package linreg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTempYaml(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "linreg.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadConfig(t *testing.T) {
	p := writeTempYaml(t, `
ssc:
  adj: false
  cluster_adj: true
alpha: 0.9
bootstrap:
  b: 499
  weights: webb
`)
	c, err := LoadConfig(p)
	require.NoError(t, err)
	require.False(t, c.SSC.Adj)
	require.True(t, c.SSC.ClusterAdj)
	require.InDelta(t, 0.9, c.Alpha, 0)
	require.Equal(t, 499, c.Boot.B)
	require.Equal(t, WEIGHTS_WEBB, c.Boot.WeightsType)
	// 未覆盖字段保持缺省
	require.Equal(t, "11", c.Boot.BootstrapType)
}

func TestInitConfig(t *testing.T) {
	// 写入全局后currentConfig读到新值; 结束时还原缺省, 不影响其他用例
	t.Cleanup(func() { cfgValue.Store(defaultConfig()) })

	p := writeTempYaml(t, "alpha: 0.9\nbootstrap:\n  b: 777\n")
	require.NoError(t, InitConfig(p))
	require.InDelta(t, 0.9, currentConfig().Alpha, 0)
	require.Equal(t, 777, currentConfig().Boot.B)

	// 加载失败不覆盖已有配置
	bad := writeTempYaml(t, "alpha: 1.5\n")
	require.Error(t, InitConfig(bad))
	require.InDelta(t, 0.9, currentConfig().Alpha, 0)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)

	_, err = LoadConfig(writeTempYaml(t, "alpha: 1.5\n"))
	require.Error(t, err)

	_, err = LoadConfig(writeTempYaml(t, "bootstrap:\n  b: -3\n"))
	require.Error(t, err)

	_, err = LoadConfig(writeTempYaml(t, "alpha: [oops\n"))
	require.Error(t, err)
}
