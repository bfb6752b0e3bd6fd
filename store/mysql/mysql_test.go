package mysql

import (
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"github.com/adjutant-go/adjutant/store"
	"github.com/adjutant-go/adjutant/store/test"
	"github.com/google/uuid"
)

const testUser = "root"
const testPassword = "root"

// Creating and dropping databases is slow, but the easiest way to isolate
// tests from each other.

func Test_MysqlStore(t *testing.T) {
	if testing.Short() {
		t.Skip()
	}

	var dbName string

	test.StoreTest(t, func() store.Store {
		db, err := sql.Open("mysql", fmt.Sprintf("%s:%s@/?parseTime=true&interpolateParams=true", testUser, testPassword))
		if err != nil {
			panic(err)
		}

		dbName = "test_" + strings.Replace(uuid.NewString(), "-", "", -1)
		if _, err := db.Exec("CREATE DATABASE " + dbName); err != nil {
			panic(fmt.Errorf("creating database: %w", err))
		}

		if err := db.Close(); err != nil {
			panic(err)
		}

		return NewMysqlStore("localhost", 3306, testUser, testPassword, dbName)
	}, func(s store.Store) {
		if err := s.Close(); err != nil {
			panic(err)
		}

		db, err := sql.Open("mysql", fmt.Sprintf("%s:%s@/?parseTime=true&interpolateParams=true", testUser, testPassword))
		if err != nil {
			panic(err)
		}

		if _, err := db.Exec("DROP DATABASE IF EXISTS " + dbName); err != nil {
			panic(fmt.Errorf("dropping database: %w", err))
		}

		if err := db.Close(); err != nil {
			panic(err)
		}
	})
}
