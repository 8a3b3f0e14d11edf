package migrate

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements(`create table a (id text); insert into a values ('x;y'); `)
	if len(stmts) != 2 {
		t.Fatalf("got %d statements: %q", len(stmts), stmts)
	}
	if stmts[1] != ` insert into a values ('x;y');` {
		t.Fatalf("semicolon inside literal split: %q", stmts[1])
	}
}

func TestCollectSQLOrdersByName(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"0002_later.up.sql", "0001_init.up.sql", "0001_init.down.sql"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("select 1;"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	files, err := collectSQL(dir, ".up.sql")
	if err != nil {
		t.Fatalf("collectSQL: %v", err)
	}
	if len(files) != 2 || files[0].Base != "0001_init.up.sql" || files[1].Base != "0002_later.up.sql" {
		t.Fatalf("unexpected files: %+v", files)
	}

	if files, err := collectSQL(filepath.Join(dir, "missing"), ".up.sql"); err != nil || files != nil {
		t.Fatalf("missing dir: files=%v err=%v", files, err)
	}
}
