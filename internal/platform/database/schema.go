package database

import (
	"database/sql"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS organizations (
	id                 TEXT PRIMARY KEY,
	slug               TEXT UNIQUE NOT NULL,
	name               TEXT NOT NULL,
	active             INTEGER NOT NULL DEFAULT 1,
	deactivated_by     TEXT NOT NULL DEFAULT '',
	unlimited_override INTEGER NOT NULL DEFAULT 0,
	created_at         INTEGER NOT NULL,
	updated_at         INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
	id              TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL REFERENCES organizations(id),
	email           TEXT UNIQUE NOT NULL,
	password_hash   TEXT NOT NULL DEFAULT '',
	full_name       TEXT NOT NULL DEFAULT '',
	role            TEXT NOT NULL,
	created_at      INTEGER NOT NULL,
	updated_at      INTEGER NOT NULL,
	deleted_at      INTEGER
);
CREATE INDEX IF NOT EXISTS idx_users_org ON users(organization_id, deleted_at);

CREATE TABLE IF NOT EXISTS plans (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	price_monthly    INTEGER NOT NULL,
	price_yearly     INTEGER NOT NULL,
	currency         TEXT NOT NULL,
	max_patients     INTEGER NOT NULL,
	max_users        INTEGER NOT NULL,
	max_appointments INTEGER NOT NULL,
	features         TEXT NOT NULL DEFAULT '[]',
	active           INTEGER NOT NULL DEFAULT 1,
	created_at       INTEGER NOT NULL,
	updated_at       INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS subscriptions (
	id                      TEXT PRIMARY KEY,
	organization_id         TEXT UNIQUE NOT NULL REFERENCES organizations(id),
	plan_id                 TEXT REFERENCES plans(id),
	status                  TEXT NOT NULL,
	billing_cycle           TEXT NOT NULL DEFAULT 'monthly',
	amount                  INTEGER NOT NULL DEFAULT 0,
	currency                TEXT NOT NULL DEFAULT 'usd',
	start_date              INTEGER NOT NULL,
	end_date                INTEGER NOT NULL,
	trial_end_date          INTEGER,
	gateway_customer_id     TEXT,
	gateway_subscription_id TEXT,
	payment_method          TEXT NOT NULL DEFAULT '',
	last_payment_date       INTEGER,
	next_payment_date       INTEGER,
	auto_renew              INTEGER NOT NULL DEFAULT 1,
	cancel_at_period_end    INTEGER NOT NULL DEFAULT 0,
	cancelled_at            INTEGER,
	cancellation_reason     TEXT NOT NULL DEFAULT '',
	last_event_at           INTEGER,
	version                 INTEGER NOT NULL DEFAULT 1,
	created_at              INTEGER NOT NULL,
	updated_at              INTEGER NOT NULL,
	CHECK (end_date >= start_date),
	CHECK (status = 'trialing' OR plan_id IS NOT NULL)
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_subscriptions_gateway
	ON subscriptions(gateway_subscription_id) WHERE gateway_subscription_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_subscriptions_expiry ON subscriptions(status, end_date);

CREATE TABLE IF NOT EXISTS payments (
	id              TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL REFERENCES organizations(id),
	subscription_id TEXT NOT NULL REFERENCES subscriptions(id),
	plan_id         TEXT NOT NULL,
	billing_cycle   TEXT NOT NULL,
	amount          INTEGER NOT NULL,
	currency        TEXT NOT NULL,
	method          TEXT NOT NULL,
	reference       TEXT NOT NULL DEFAULT '',
	recorded_by     TEXT NOT NULL DEFAULT '',
	paid_at         INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS usage_counters (
	organization_id TEXT PRIMARY KEY REFERENCES organizations(id),
	patients        INTEGER NOT NULL DEFAULT 0,
	users           INTEGER NOT NULL DEFAULT 0,
	appointments    INTEGER NOT NULL DEFAULT 0,
	period          TEXT NOT NULL,
	last_reset_at   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS patients (
	id              TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL REFERENCES organizations(id),
	full_name       TEXT NOT NULL,
	created_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_patients_org ON patients(organization_id, created_at);

CREATE TABLE IF NOT EXISTS appointments (
	id              TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL REFERENCES organizations(id),
	patient_id      TEXT NOT NULL DEFAULT '',
	scheduled_at    INTEGER NOT NULL,
	created_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_appointments_org ON appointments(organization_id, created_at);

CREATE TABLE IF NOT EXISTS audit_logs (
	id              TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL,
	user_id         TEXT NOT NULL DEFAULT '',
	action          TEXT NOT NULL,
	resource_type   TEXT NOT NULL,
	resource_id     TEXT NOT NULL DEFAULT '',
	metadata        TEXT NOT NULL DEFAULT '{}',
	ip_address      TEXT NOT NULL DEFAULT '',
	user_agent      TEXT NOT NULL DEFAULT '',
	created_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_org ON audit_logs(organization_id, created_at);
`

// Catalog rows inserted on first migration. Limits use -1 for unlimited.
const seedPlans = `
INSERT OR IGNORE INTO plans (id, name, price_monthly, price_yearly, currency, max_patients, max_users, max_appointments, features, active, created_at, updated_at) VALUES
	('basic', 'Basic', 2900, 29000, 'usd', 100, 3, 300, '["email_notifications"]', 1, strftime('%s','now'), strftime('%s','now')),
	('professional', 'Professional', 7900, 79000, 'usd', 1000, 10, 3000, '["email_notifications","sms_notifications","advanced_reports","data_backup"]', 1, strftime('%s','now'), strftime('%s','now')),
	('enterprise', 'Enterprise', 19900, 199000, 'usd', -1, -1, -1, '["custom_branding","api_access","priority_support","advanced_reports","sms_notifications","email_notifications","data_backup"]', 1, strftime('%s','now'), strftime('%s','now'));
`

// Migrate creates the schema and seeds the default plan catalog. It is
// safe to run repeatedly.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	if _, err := db.Exec(seedPlans); err != nil {
		return fmt.Errorf("seed plans: %w", err)
	}
	return nil
}
