package repository

import "strings"

// Schema definitions for the Magpie database.
// One logical schema, rendered per driver: key and indexed string
// columns need a bounded VARCHAR on MySQL, float columns need DOUBLE
// PRECISION outside SQLite, and MySQL has no CREATE INDEX IF NOT
// EXISTS (migrate tolerates the duplicate-index error instead).

const schemaCustomers = `
CREATE TABLE IF NOT EXISTS customers (
    customer_id {KEY} PRIMARY KEY,
    join_date {TS},
    loyalty_tier TEXT,
    pref_channel TEXT,
    label_affinity TEXT
);
`

const schemaEvents = `
CREATE TABLE IF NOT EXISTS events (
    event_id {KEY} PRIMARY KEY,
    customer_id {KEY} NOT NULL,
    event_dt {TS} NOT NULL,
    event_type {KEY} NOT NULL,
    net_price {REAL} NOT NULL DEFAULT 0,
    list_price {REAL} NOT NULL DEFAULT 0,
    discount_pct {REAL} NOT NULL DEFAULT 0,
    category TEXT,
    brand TEXT,
    label TEXT,
    order_id TEXT,
    rating_value {REAL} NOT NULL DEFAULT 0,
    polarity_score {REAL} NOT NULL DEFAULT 0
);

{INDEX} idx_events_customer ON events(customer_id);
{INDEX} idx_events_dt ON events(event_dt);
{INDEX} idx_events_type ON events(event_type);
`

const schemaFeatures = `
CREATE TABLE IF NOT EXISTS features (
    customer_id {KEY} PRIMARY KEY,
    recency_days INTEGER NOT NULL,
    tenure_days INTEGER NOT NULL,
    purchase_count_90 INTEGER NOT NULL,
    spend_90 {REAL} NOT NULL,
    avg_order_value_90 {REAL} NOT NULL,
    category_diversity_90 INTEGER NOT NULL,
    discount_share_90 {REAL} NOT NULL,
    premium_share_90 {REAL} NOT NULL,
    label_match_rate_90 {REAL} NOT NULL,
    top_brand_share_90 {REAL} NOT NULL,
    review_rate {REAL} NOT NULL,
    avg_rating {REAL} NOT NULL,
    avg_polarity {REAL} NOT NULL,
    computed_at {TS} NOT NULL
);
`

const schemaPersonas = `
CREATE TABLE IF NOT EXISTS personas (
    customer_id {KEY} PRIMARY KEY,
    persona {KEY} NOT NULL,
    assigned_at {TS} NOT NULL
);

{INDEX} idx_personas_persona ON personas(persona);
`

const schemaSnapshots = `
CREATE TABLE IF NOT EXISTS snapshots (
    id {KEY} PRIMARY KEY,
    created_at {TS} NOT NULL,
    customer_count INTEGER NOT NULL,
    event_count INTEGER NOT NULL,
    window_days INTEGER NOT NULL,
    max_event_dt {TS} NOT NULL,
    thresholds TEXT NOT NULL,
    persona_counts TEXT NOT NULL,
    elapsed_ms INTEGER NOT NULL
);

{INDEX} idx_snapshots_created ON snapshots(created_at);
`

// dialect renders the shared schema for one driver.
func dialect(driver string) *strings.Replacer {
	switch driver {
	case "mysql":
		return strings.NewReplacer(
			"{KEY}", "VARCHAR(64)",
			"{REAL}", "DOUBLE",
			"{TS}", "DATETIME(6)",
			"{INDEX}", "CREATE INDEX",
		)
	case "postgres":
		return strings.NewReplacer(
			"{KEY}", "TEXT",
			"{REAL}", "DOUBLE PRECISION",
			"{TS}", "TIMESTAMP",
			"{INDEX}", "CREATE INDEX IF NOT EXISTS",
		)
	default: // sqlite
		return strings.NewReplacer(
			"{KEY}", "TEXT",
			"{REAL}", "REAL",
			"{TS}", "TIMESTAMP",
			"{INDEX}", "CREATE INDEX IF NOT EXISTS",
		)
	}
}

// AllSchemas returns all schema statements for a driver, in order.
func AllSchemas(driver string) []string {
	r := dialect(driver)
	schemas := []string{
		schemaCustomers,
		schemaEvents,
		schemaFeatures,
		schemaPersonas,
		schemaSnapshots,
	}
	out := make([]string, len(schemas))
	for i, s := range schemas {
		out[i] = r.Replace(s)
	}
	return out
}
