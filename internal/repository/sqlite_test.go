package repository

import (
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/yuanqi-assessment-server/internal/database"
)

func TestSQLiteRepository(t *testing.T) {
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "assessments.db"))
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	repo, err := NewSQLiteRepository(db, logger)
	require.NoError(t, err)
	defer repo.Close()

	runRepositoryContract(t, repo)
}

func TestNewSQLiteRepository_RequiresDB(t *testing.T) {
	_, err := NewSQLiteRepository(nil, logrus.New())
	require.Error(t, err)
}
