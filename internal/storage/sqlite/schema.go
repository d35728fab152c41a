package sqlite

const schemaSQL = `
-- Cities and meetings (owning entities, managed by the wider application)
CREATE TABLE IF NOT EXISTS cities (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS meetings (
	id TEXT PRIMARY KEY,
	city_id TEXT NOT NULL REFERENCES cities(id),
	name TEXT NOT NULL,
	date INTEGER NOT NULL,
	media_url TEXT,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_meetings_city ON meetings(city_id, date DESC);
CREATE INDEX IF NOT EXISTS idx_meetings_date ON meetings(date DESC);

-- Versioned task status rows, one per (meeting, task type, version)
CREATE TABLE IF NOT EXISTS task_statuses (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	status TEXT NOT NULL,
	version INTEGER NOT NULL,
	city_id TEXT NOT NULL,
	meeting_id TEXT NOT NULL,
	request_payload TEXT,
	result_summary TEXT,
	error TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	UNIQUE(meeting_id, type, version)
);

CREATE INDEX IF NOT EXISTS idx_tasks_meeting ON task_statuses(meeting_id, type, version DESC);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON task_statuses(status, type);
CREATE INDEX IF NOT EXISTS idx_tasks_created ON task_statuses(created_at DESC);

-- External job requests; the id doubles as the webhook path segment
CREATE TABLE IF NOT EXISTS job_requests (
	id TEXT PRIMARY KEY,
	task_status_id TEXT NOT NULL,
	meeting_id TEXT NOT NULL,
	city_id TEXT NOT NULL,
	type TEXT NOT NULL,
	external_job_id TEXT,
	status TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_requests_meeting ON job_requests(meeting_id, type);

-- Transcript domain data written by task handlers
CREATE TABLE IF NOT EXISTS speaker_segments (
	id TEXT PRIMARY KEY,
	meeting_id TEXT NOT NULL,
	speaker TEXT NOT NULL,
	start_sec REAL NOT NULL,
	end_sec REAL NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_segments_meeting ON speaker_segments(meeting_id, start_sec);

CREATE TABLE IF NOT EXISTS utterances (
	id TEXT PRIMARY KEY,
	meeting_id TEXT NOT NULL,
	segment_id TEXT NOT NULL,
	text TEXT NOT NULL,
	start_sec REAL NOT NULL,
	end_sec REAL NOT NULL,
	edit_count INTEGER NOT NULL DEFAULT 0,
	last_edited_at INTEGER,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_utterances_meeting ON utterances(meeting_id, start_sec);

CREATE TABLE IF NOT EXISTS words (
	id TEXT PRIMARY KEY,
	utterance_id TEXT NOT NULL,
	meeting_id TEXT NOT NULL,
	text TEXT NOT NULL,
	start_sec REAL NOT NULL,
	end_sec REAL NOT NULL,
	confidence REAL NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_words_utterance ON words(utterance_id);
CREATE INDEX IF NOT EXISTS idx_words_meeting ON words(meeting_id);

-- Agenda subjects written by the processAgenda stage
CREATE TABLE IF NOT EXISTS agenda_subjects (
	id TEXT PRIMARY KEY,
	meeting_id TEXT NOT NULL,
	title TEXT NOT NULL,
	ordinal INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_subjects_meeting ON agenda_subjects(meeting_id, ordinal);

-- Meeting summaries written by the summarize stage
CREATE TABLE IF NOT EXISTS summaries (
	meeting_id TEXT PRIMARY KEY,
	text TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);

-- Transparency-registry decisions discovered by polling
CREATE TABLE IF NOT EXISTS decisions (
	id TEXT PRIMARY KEY,
	meeting_id TEXT NOT NULL,
	subject_id TEXT,
	ada TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL,
	document_url TEXT,
	published_at INTEGER NOT NULL,
	discovered_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_meeting ON decisions(meeting_id);
`
