package schema

import "github.com/hyperengineering/fieldsync/internal/types"

// tables is the fixed set of syncable tables, in dependency order
// (owners before children).
var tables = []Table{
	{
		Name: types.TableUsers,
		Columns: []Column{
			{Name: "email", Type: Text},
			{Name: "display_name", Type: Text},
			{Name: "avatar_url", Type: Text},
		},
		Push: true,
	},
	{
		Name: types.TableScans,
		Columns: []Column{
			{Name: "user_local_id", Type: Text, Remote: "user_id"},
			{Name: "image_path", Type: Text},
			{Name: "image_url", Type: Text},
			{Name: "plant_name", Type: Text},
			{Name: "notes", Type: Text},
			{Name: "latitude", Type: Real, Nullable: true},
			{Name: "longitude", Type: Real, Nullable: true},
			{Name: "captured_at", Type: Timestamp},
		},
		Push:  true,
		Owner: "user_local_id",
	},
	{
		Name: types.TableDiagnoses,
		Columns: []Column{
			{Name: "scan_local_id", Type: Text, Remote: "scan_id"},
			{Name: "disease_name", Type: Text},
			{Name: "confidence", Type: Real},
			{Name: "severity", Type: Text},
			{Name: "treatment", Type: Text},
			{Name: "model_version", Type: Text},
		},
		Push: true,
	},
	{
		Name: types.TableTips,
		Columns: []Column{
			{Name: "title", Type: Text},
			{Name: "body", Type: Text},
			{Name: "category", Type: Text},
			{Name: "plant_type", Type: Text},
			{Name: "is_bookmarked", Type: Bool},
			{Name: "published_at", Type: Timestamp},
		},
		Push: true,
		Pull: true,
	},
	{
		Name: types.TableNotifications,
		Columns: []Column{
			{Name: "user_local_id", Type: Text, Remote: "user_id"},
			{Name: "title", Type: Text},
			{Name: "body", Type: Text},
			{Name: "kind", Type: Text},
			{Name: "is_read", Type: Bool},
			{Name: "read_at", Type: Timestamp},
		},
		Push:  true,
		Pull:  true,
		Owner: "user_local_id",
	},
}

var byName = func() map[string]Table {
	m := make(map[string]Table, len(tables))
	for _, t := range tables {
		m[t.Name] = t
	}
	return m
}()

// Lookup returns the table with the given name.
func Lookup(name string) (Table, bool) {
	t, ok := byName[name]
	return t, ok
}

// All returns every syncable table in dependency order.
func All() []Table {
	return append([]Table(nil), tables...)
}

// Pullable returns the tables the pull engine fetches, in dependency order.
func Pullable() []Table {
	var out []Table
	for _, t := range tables {
		if t.Pull {
			out = append(out, t)
		}
	}
	return out
}

// Pushable reports whether local mutations of the named table are pushed.
func Pushable(name string) bool {
	t, ok := byName[name]
	return ok && t.Push
}
