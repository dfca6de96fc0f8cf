package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	require.NoError(t, err)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	require.NotEmpty(t, ups)
	assert.Equal(t, ups, downs)
}

func TestSchemaCoversLedgerTables(t *testing.T) {
	raw, err := fs.ReadFile(embeddedMigrations, migrationsDir+"/000001_referral_ledger.up.sql")
	require.NoError(t, err)
	schema := string(raw)

	for _, table := range []string{
		"partners", "customers", "referrals", "orders", "commission_ledger_entries",
		"customer_credits", "payment_events", "profiles", "reconciliation_runs", "audit_logs",
	} {
		assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS "+table+" (", table)
	}
	assert.Contains(t, schema, "ON commission_ledger_entries(recipient_id, order_id, commission_type)")
}

func TestRunMigrationsRequiresHandle(t *testing.T) {
	assert.Error(t, RunMigrations(nil))
}
