package postgres

// constraintHashedStudentID is mapped back to shared.ErrStudentAlreadyLinked.
const constraintHashedStudentID = "accounts_hashed_student_id_key"

// GetMigrations returns all embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_exams", UpSQL: migration001Up},
		{Version: 2, Name: "create_accounts", UpSQL: migration002Up},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE EXAMS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS exams (
    exam_id VARCHAR(40) NOT NULL,
    content_hash VARCHAR(128) NOT NULL,
    title TEXT NOT NULL,
    skill_type VARCHAR(20) NOT NULL CHECK (skill_type IN ('Reading', 'Listening')),
    level VARCHAR(4) NOT NULL CHECK (level IN ('B1', 'B2', 'C1')),
    questions JSONB NOT NULL,
    proposal_id BIGINT NOT NULL,
    proposer_address VARCHAR(42) NOT NULL DEFAULT '',
    status VARCHAR(20) NOT NULL DEFAULT 'approved' CHECK (status IN ('approved', 'pending')),
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT exams_pkey PRIMARY KEY (exam_id),
    CONSTRAINT exams_proposal_id_key UNIQUE (proposal_id),
    CONSTRAINT exams_questions_nonempty CHECK (jsonb_array_length(questions) > 0)
);

CREATE INDEX IF NOT EXISTS idx_exams_content_hash ON exams(content_hash);
CREATE INDEX IF NOT EXISTS idx_exams_status_created ON exams(status, created_at DESC);
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE ACCOUNTS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS accounts (
    user_id VARCHAR(42) NOT NULL,
    hashed_student_id CHAR(64) NOT NULL,
    card_id VARCHAR(64) NOT NULL,
    remaining_attempts INTEGER NOT NULL DEFAULT 2,
    status VARCHAR(20) NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'blocked')),
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT accounts_pkey PRIMARY KEY (user_id),
    CONSTRAINT accounts_hashed_student_id_key UNIQUE (hashed_student_id),
    CONSTRAINT accounts_card_id_key UNIQUE (card_id),
    CONSTRAINT accounts_remaining_attempts_nonneg CHECK (remaining_attempts >= 0)
);

CREATE INDEX IF NOT EXISTS idx_accounts_remaining_attempts ON accounts(remaining_attempts DESC);
`
