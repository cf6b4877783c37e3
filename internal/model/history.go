package model

// MaxVisited caps History.Visited.
const MaxVisited = 8

// HistoryVisited is the only history filter the app records.
const HistoryVisited = "visited"

// History holds the profiles a user has looked at, most recent first.
type History struct {
	Visited []string `json:"visited" bson:"visited"`
}

// PushVisited returns visited with id moved (or inserted) at the front and
// the result cut to max entries. The input slice is not modified.
func PushVisited(visited []string, id string, max int) []string {
	out := make([]string, 0, len(visited)+1)
	out = append(out, id)
	for _, v := range visited {
		if v == id {
			continue
		}
		out = append(out, v)
	}
	if len(out) > max {
		out = out[:max]
	}
	return out
}
