package postgresql

// migrations returns the ordered schema migrations for the query engine.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS queries (
				id UUID PRIMARY KEY,
				name VARCHAR(200) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				status VARCHAR(20) NOT NULL DEFAULT 'draft',
				priority INTEGER NOT NULL DEFAULT 5,
				template_id BIGINT,
				execution_count BIGINT NOT NULL DEFAULT 0,
				last_executed_at TIMESTAMP WITH TIME ZONE,
				created_by TEXT NOT NULL DEFAULT '',
				updated_by TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE UNIQUE INDEX IF NOT EXISTS queries_active_name_idx
				ON queries (name) WHERE status = 'active';

			CREATE TABLE IF NOT EXISTS constants (
				id BIGSERIAL PRIMARY KEY,
				query_id UUID REFERENCES queries (id) ON DELETE CASCADE,
				name VARCHAR(100) NOT NULL,
				display_name TEXT NOT NULL DEFAULT '',
				default_value TEXT NOT NULL DEFAULT '',
				data_type VARCHAR(20) NOT NULL DEFAULT 'text',
				is_global BOOLEAN NOT NULL DEFAULT FALSE,
				required BOOLEAN NOT NULL DEFAULT FALSE,
				description TEXT NOT NULL DEFAULT '',
				version BIGINT NOT NULL DEFAULT 1,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				CONSTRAINT constants_scope CHECK (
					(is_global AND query_id IS NULL) OR (NOT is_global AND query_id IS NOT NULL)
				)
			);

			CREATE UNIQUE INDEX IF NOT EXISTS constants_local_name_idx
				ON constants (query_id, name) WHERE query_id IS NOT NULL;
			CREATE UNIQUE INDEX IF NOT EXISTS constants_global_name_idx
				ON constants (name) WHERE is_global;

			CREATE TABLE IF NOT EXISTS outputs (
				id BIGSERIAL PRIMARY KEY,
				query_id UUID NOT NULL REFERENCES queries (id) ON DELETE CASCADE,
				name VARCHAR(100) NOT NULL,
				display_name TEXT NOT NULL DEFAULT '',
				formula TEXT NOT NULL DEFAULT '',
				execution_order INTEGER NOT NULL DEFAULT 0,
				display_order INTEGER NOT NULL DEFAULT 0,
				active BOOLEAN NOT NULL DEFAULT TRUE,
				required BOOLEAN NOT NULL DEFAULT FALSE,
				visible BOOLEAN NOT NULL DEFAULT TRUE,
				include_in_output BOOLEAN NOT NULL DEFAULT TRUE,
				data_type VARCHAR(20) NOT NULL DEFAULT 'text',
				default_value TEXT NOT NULL DEFAULT '',
				version BIGINT NOT NULL DEFAULT 1,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE UNIQUE INDEX IF NOT EXISTS outputs_name_idx ON outputs (query_id, name);
			CREATE INDEX IF NOT EXISTS outputs_query_idx ON outputs (query_id);

			CREATE TABLE IF NOT EXISTS canvases (
				query_id UUID PRIMARY KEY REFERENCES queries (id) ON DELETE CASCADE,
				raw TEXT NOT NULL DEFAULT '',
				last_validated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_by TEXT NOT NULL DEFAULT '',
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			-- Read-only mirror of the external template subsystem, populated
			-- by the surrounding application.
			CREATE TABLE IF NOT EXISTS templates (
				id BIGINT PRIMARY KEY,
				name TEXT NOT NULL,
				active BOOLEAN NOT NULL DEFAULT TRUE
			);

			CREATE TABLE IF NOT EXISTS fields (
				id BIGINT PRIMARY KEY,
				name TEXT NOT NULL,
				template_id BIGINT NOT NULL REFERENCES templates (id)
			);
		`,
	}
}
