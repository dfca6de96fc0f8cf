package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatementVerb(t *testing.T) {
	cases := map[string]string{
		"SELECT * FROM orders":                         "SELECT",
		"WITH x AS (SELECT 1) UPDATE orders SET a = 1": "SELECT",
		"insert into customer_credits values (1)":      "INSERT",
		"  DELETE FROM referrals":                      "DELETE",
		"PRAGMA foreign_keys = ON":                     "OTHER",
	}
	for sql, want := range cases {
		assert.Equal(t, want, statementVerb(sql), sql)
	}
}
