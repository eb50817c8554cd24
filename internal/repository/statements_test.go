package repository

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/imsportal/filingstack/internal/enum"
	"github.com/imsportal/filingstack/internal/models"
	"github.com/imsportal/filingstack/internal/utils"
)

type capturedStatement struct {
	sql  string
	vars []interface{}
}

// newDryRunDB builds statements against the postgres dialect without a
// server and records every insert and update it would have run.
func newDryRunDB(t *testing.T) (*gorm.DB, *[]capturedStatement) {
	t.Helper()

	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=localhost user=filingstack dbname=filingstack sslmode=disable",
	}), &gorm.Config{
		DryRun:                 true,
		DisableAutomaticPing:   true,
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Discard,
	})
	require.NoError(t, err)

	var statements []capturedStatement
	capture := func(tx *gorm.DB) {
		statements = append(statements, capturedStatement{
			sql:  tx.Statement.SQL.String(),
			vars: append([]interface{}(nil), tx.Statement.Vars...),
		})
	}
	require.NoError(t, db.Callback().Create().After("gorm:create").Register("filingstack:capture", capture))
	require.NoError(t, db.Callback().Update().After("gorm:update").Register("filingstack:capture", capture))

	return db, &statements
}

// insertedValues maps the column list of a single row INSERT to its vars.
func insertedValues(t *testing.T, statement capturedStatement) map[string]interface{} {
	t.Helper()

	start := strings.Index(statement.sql, "(")
	end := strings.Index(statement.sql, ") VALUES")
	require.True(t, start >= 0 && end > start, statement.sql)

	columns := strings.Split(statement.sql[start+1:end], ",")
	require.Len(t, columns, len(statement.vars), statement.sql)

	values := make(map[string]interface{}, len(columns))
	for i, column := range columns {
		values[strings.Trim(column, `"`)] = statement.vars[i]
	}
	return values
}

func TestEmailConfigurationRepository_CreateKeepsFalseFlags(t *testing.T) {
	// Arrange
	db, statements := newDryRunDB(t)
	repo := NewEmailConfigurationRepository(db)
	config := &models.EmailConfiguration{
		InstanceID:         "inst_acme",
		ConfigType:         enum.ConfigManaged,
		AddressingMode:     enum.AddressingSubdomain,
		EmailPrefix:        " Claims ",
		IsActive:           false,
		IncludeAttachments: false,
	}

	// Act
	id, err := repo.Create(context.Background(), config)

	// Assert
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "ecfg_"))
	require.Len(t, *statements, 1)
	values := insertedValues(t, (*statements)[0])
	assert.Equal(t, false, values["is_active"])
	assert.Equal(t, false, values["include_attachments"])
	assert.Equal(t, "claims", values["email_prefix"])
	assert.False(t, config.IsActive)
	assert.False(t, config.IncludeAttachments)
}

func TestEmailConfigurationRepository_AdvanceWatermarkIsOneGreatestUpdate(t *testing.T) {
	// Arrange
	db, statements := newDryRunDB(t)
	repo := NewEmailConfigurationRepository(db)
	ts := time.Date(2024, 3, 5, 11, 20, 0, 0, time.FixedZone("CET", 3600))

	// Act
	err := repo.AdvanceWatermark(context.Background(), []string{"ecfg_a", "ecfg_b"}, ts)

	// Assert
	require.NoError(t, err)
	require.Len(t, *statements, 1)
	statement := (*statements)[0]
	assert.Contains(t, statement.sql, `UPDATE "email_configurations" SET "last_processed_at"=GREATEST(last_processed_at, $1)`)
	assert.Contains(t, statement.sql, "WHERE id IN ($2,$3)")
	assert.NotContains(t, statement.sql, "updated_at")
	assert.Equal(t, []interface{}{ts.UTC(), "ecfg_a", "ecfg_b"}, statement.vars)
}

func TestEmailConfigurationRepository_AdvanceWatermarkWithoutIDsIsNoop(t *testing.T) {
	db, statements := newDryRunDB(t)
	repo := NewEmailConfigurationRepository(db)

	require.NoError(t, repo.AdvanceWatermark(context.Background(), nil, time.Now()))
	require.NoError(t, repo.AdvanceWatermark(context.Background(), []string{"ecfg_a"}, time.Time{}))

	assert.Empty(t, *statements)
}

func TestProcessingLogRepository_UpsertStatement(t *testing.T) {
	// Arrange
	db, statements := newDryRunDB(t)
	repo := NewProcessingLogRepository(db)
	entry := &models.ProcessingLog{
		ExternalMessageID: "AAMk/abc=",
		Mailbox:           "intake@ims-portal.com",
		ControlNumber:     utils.StringPtr("12345"),
		Status:            enum.ProcessingFiled,
		ReceivedAt:        time.Date(2024, 3, 5, 11, 0, 0, 0, time.UTC),
	}

	// Act
	id, err := repo.Upsert(context.Background(), entry)

	// Assert
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "plog_"))
	assert.Equal(t, 1, entry.Attempts)
	require.Len(t, *statements, 1)
	statement := (*statements)[0]

	assert.True(t, strings.HasPrefix(statement.sql, `INSERT INTO "email_processing_logs"`), statement.sql)
	assert.Contains(t, statement.sql, `ON CONFLICT ("external_message_id") DO UPDATE SET`)
	assert.Regexp(t, regexp.MustCompile(
		`"attempts"=CASE WHEN EXCLUDED\.status = \$\d+ THEN email_processing_logs\.attempts \+ 1 ELSE email_processing_logs\.attempts END`),
		statement.sql)
	assert.Contains(t, statement.sql, `"status"=EXCLUDED.status`)
	assert.Contains(t, statement.sql, `"filed_document_ids"=EXCLUDED.filed_document_ids`)
	assert.NotContains(t, statement.sql, `"created_at"=`)
	assert.NotContains(t, statement.sql, `"external_message_id"=`)
	assert.True(t, strings.HasSuffix(statement.sql, `RETURNING "id"`), statement.sql)
	assert.Contains(t, statement.vars, enum.ProcessingInProgress)
}
