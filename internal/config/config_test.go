package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "postgres", cfg.DB.Driver)
	require.Equal(t, uint(5), cfg.DB.Retries)
	require.Equal(t, int64(100), cfg.ExchangeRate)
	require.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	require.Equal(t, "referral-tasks", cfg.Kafka.Topic)
	require.Equal(t, 720*time.Hour, cfg.Campaign.RelationTTL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LEDGER_DB_DRIVER", "sqlite")
	t.Setenv("LEDGER_SQLITE_PATH", "/tmp/ledger.db")
	t.Setenv("LEDGER_TIMEZONE", "Asia/Shanghai")
	t.Setenv("CAMPAIGN_INVITER_REWARD", "300")

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.DB.Validate())
	require.Equal(t, int64(300), cfg.Campaign.InviterReward)

	loc, err := cfg.Location()
	require.NoError(t, err)
	require.Equal(t, "Asia/Shanghai", loc.String())
}

func TestLoadErrors(t *testing.T) {
	t.Setenv("LEDGER_TX_RETRIES", "many")
	_, err := Load()
	require.ErrorContains(t, err, "parse env:")
}

func TestLoadBadTimezone(t *testing.T) {
	t.Setenv("LEDGER_TIMEZONE", "Mars/Olympus")
	_, err := Load()
	require.Error(t, err)
}

func TestDBValidate(t *testing.T) {
	require.ErrorContains(t, DB{Driver: "postgres"}.Validate(), "LEDGER_DB is not set")
	require.ErrorContains(t, DB{Driver: "mysql"}.Validate(), "unknown LEDGER_DB_DRIVER")

	db := DB{Driver: "postgres", Host: "localhost", Port: "5432", User: "u", Password: "p", Database: "ledger"}
	require.NoError(t, db.Validate())
	require.Equal(t, "postgres://u:p@localhost:5432/ledger", db.DSN())
}
