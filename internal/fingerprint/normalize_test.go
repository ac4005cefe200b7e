package fingerprint

import "testing"

func TestNormalizeMessage(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "bare integer",
			in:   "User 42 not found",
			want: "User <int> not found",
		},
		{
			name: "uuid",
			in:   "session 550e8400-e29b-41d4-a716-446655440000 expired",
			want: "session <uuid> expired",
		},
		{
			name: "uuid not eaten by integer rule",
			in:   "token 123e4567-e89b-12d3-a456-426614174000",
			want: "token <uuid>",
		},
		{
			name: "email",
			in:   "delivery to bob@example.com failed",
			want: "delivery to <email> failed",
		},
		{
			name: "url swallows its own path and numbers",
			in:   "GET https://api.example.com/v2/users/42 timed out",
			want: "GET <url> timed out",
		},
		{
			name: "absolute path",
			in:   "failed to open /var/www/storage/logs/app.log",
			want: "failed to open <path>",
		},
		{
			name: "quoted strings",
			in:   `could not parse 'foo bar' near "baz"`,
			want: "could not parse <quoted> near <quoted>",
		},
		{
			name: "whitespace collapsed",
			in:   "  too   many\t\n spaces  ",
			want: "too many spaces",
		},
		{
			name: "digits embedded in words survive",
			in:   "upgrade to v2 failed",
			want: "upgrade to v2 failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeMessage(tt.in); got != tt.want {
				t.Errorf("NormalizeMessage(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeQuery(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "numeric literal",
			in:   "SELECT * FROM t WHERE id = 1",
			want: "select * from t where id = ?",
		},
		{
			name: "quoted literal",
			in:   "SELECT * FROM users WHERE name = 'Alice'",
			want: "select * from users where name = ?",
		},
		{
			name: "named marker colon",
			in:   "SELECT * FROM t WHERE id = :id",
			want: "select * from t where id = ?",
		},
		{
			name: "named marker at",
			in:   "SELECT * FROM t WHERE id = @id",
			want: "select * from t where id = ?",
		},
		{
			name: "positional marker keeps dollar",
			in:   "SELECT * FROM t WHERE id = $1",
			want: "select * from t where id = $?",
		},
		{
			name: "decimal literal",
			in:   "SELECT * FROM orders WHERE total > 9.99",
			want: "select * from orders where total > ?",
		},
		{
			name: "whitespace and case",
			in:   "SELECT *\n  FROM t\n  WHERE a IN (1, 2, 3)",
			want: "select * from t where a in (?, ?, ?)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeQuery(tt.in); got != tt.want {
				t.Errorf("NormalizeQuery(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// Different literal values and different marker styles must reduce to
// the same shape; $1 and $2 group via the $? token.
func TestNormalizeQueryEquivalences(t *testing.T) {
	pairs := []struct {
		name string
		a, b string
	}{
		{"literal values", "SELECT * FROM t WHERE id = 1", "SELECT * FROM t WHERE id = 999"},
		{"marker styles", "SELECT * FROM t WHERE id = :id", "SELECT * FROM t WHERE id = @id"},
		{"positional markers", "SELECT * FROM t WHERE id = $1", "SELECT * FROM t WHERE id = $2"},
	}

	for _, tt := range pairs {
		t.Run(tt.name, func(t *testing.T) {
			if na, nb := NormalizeQuery(tt.a), NormalizeQuery(tt.b); na != nb {
				t.Errorf("NormalizeQuery(%q) = %q, NormalizeQuery(%q) = %q; want equal", tt.a, na, tt.b, nb)
			}
		})
	}
}

func TestNormalizeSubject(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Post:42", "Post:[ID]"},
		{"Doc:550e8400-e29b-41d4-a716-446655440000", "Doc:[ID]"},
		{"42", "[ID]"},
		{"550e8400-e29b-41d4-a716-446655440000", "[ID]"},
		{"Dashboard", "Dashboard"},
		{"Team:admin", "Team:admin"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := NormalizeSubject(tt.in); got != tt.want {
			t.Errorf("NormalizeSubject(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFirstFrame(t *testing.T) {
	tests := []struct {
		name     string
		trace    string
		wantFile string
		wantLine string
	}{
		{
			name: "frame with function and parens",
			trace: "Error: boom\n" +
				"    at UserService.find (/home/deploy/api/src/services/user.ts:88:11)\n" +
				"    at processTicksAndRejections (node:internal/process/task_queues:95:5)\n",
			wantFile: "services/user.ts",
			wantLine: "88",
		},
		{
			name:     "bare frame without parens",
			trace:    "    at /app/jobs/retry.ts:12:3",
			wantFile: "jobs/retry.ts",
			wantLine: "12",
		},
		{
			name: "dependency frame collapses to package",
			trace: "Error: connect ECONNREFUSED\n" +
				"    at Pool.query (/home/x/api/node_modules/pg/lib/client.js:413:26)\n",
			wantFile: "[dependency]/pg",
			wantLine: "413",
		},
		{
			name:     "scoped dependency keeps scope",
			trace:    "    at Router.handle (/srv/api/node_modules/@nestjs/core/router.js:55:9)",
			wantFile: "[dependency]/@nestjs/core",
			wantLine: "55",
		},
		{
			name:     "vendor directory",
			trace:    "    at handler (/srv/api/vendor/acme/http/kernel.go:101:4)",
			wantFile: "[dependency]/acme",
			wantLine: "101",
		},
		{
			name:     "no source root marker keeps full path",
			trace:    "    at main (/opt/tool/main.ts:7:1)",
			wantFile: "/opt/tool/main.ts",
			wantLine: "7",
		},
		{
			name:     "empty trace",
			trace:    "",
			wantFile: "",
			wantLine: "",
		},
		{
			name:     "no matching frame",
			trace:    "Error: kaboom\nsomething unstructured\n",
			wantFile: "",
			wantLine: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file, line := FirstFrame(tt.trace)
			if file != tt.wantFile || line != tt.wantLine {
				t.Errorf("FirstFrame() = (%q, %q), want (%q, %q)", file, line, tt.wantFile, tt.wantLine)
			}
		})
	}
}

func TestCleanFramePathRightmostRoot(t *testing.T) {
	// Nested roots strip at the rightmost marker.
	got := CleanFramePath("/var/www/app/src/controllers/users.ts")
	if got != "controllers/users.ts" {
		t.Errorf("CleanFramePath() = %q, want %q", got, "controllers/users.ts")
	}
}
