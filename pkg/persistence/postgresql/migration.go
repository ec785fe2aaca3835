package postgresql

// migrations returns the versioned schema for the event-sourced store.
// workflow_events carries the append-only hot log; archived_events is cold
// storage with identical columns so relocation never rewrites content.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS workflow_events (
				event_id UUID PRIMARY KEY,
				workflow_id TEXT NOT NULL,
				parent_workflow_id TEXT,
				sequence BIGINT NOT NULL,
				action TEXT NOT NULL,
				step_id TEXT,
				data JSONB,
				occurred_at TIMESTAMP WITH TIME ZONE NOT NULL,
				schema_version INTEGER NOT NULL,
				signature TEXT NOT NULL,
				CONSTRAINT workflow_events_sequence_unique UNIQUE (workflow_id, sequence)
			);

			CREATE INDEX IF NOT EXISTS idx_workflow_events_workflow_time
				ON workflow_events (workflow_id, occurred_at);

			CREATE TABLE IF NOT EXISTS archived_events (
				event_id UUID PRIMARY KEY,
				workflow_id TEXT NOT NULL,
				parent_workflow_id TEXT,
				sequence BIGINT NOT NULL,
				action TEXT NOT NULL,
				step_id TEXT,
				data JSONB,
				occurred_at TIMESTAMP WITH TIME ZONE NOT NULL,
				schema_version INTEGER NOT NULL,
				signature TEXT NOT NULL,
				archived_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				CONSTRAINT archived_events_sequence_unique UNIQUE (workflow_id, sequence)
			);

			CREATE TABLE IF NOT EXISTS workflow_snapshots (
				snapshot_id UUID PRIMARY KEY,
				workflow_id TEXT NOT NULL,
				state JSONB NOT NULL,
				event_count BIGINT NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_workflow_snapshots_workflow
				ON workflow_snapshots (workflow_id, event_count DESC);

			CREATE TABLE IF NOT EXISTS approval_requests (
				id UUID PRIMARY KEY,
				workflow_id TEXT NOT NULL,
				step_id TEXT NOT NULL,
				risk_level TEXT NOT NULL,
				status TEXT NOT NULL,
				approver_id TEXT,
				approver_role TEXT,
				justification TEXT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
				decided_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX IF NOT EXISTS idx_approval_requests_status
				ON approval_requests (status, expires_at);

			CREATE TABLE IF NOT EXISTS workflow_metadata (
				workflow_id TEXT PRIMARY KEY,
				status TEXT NOT NULL,
				total_events BIGINT NOT NULL DEFAULT 0,
				steps_completed_count INTEGER NOT NULL DEFAULT 0,
				latest_snapshot_id TEXT,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);
		`,
	}
}
