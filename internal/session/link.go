package session

import (
	"errors"
	"net/url"
	"strings"

	"github.com/1ureka/beam/internal/room"
)

// ErrBadLink is returned for links that carry no room id or key.
var ErrBadLink = errors.New("invalid share link")

// BuildLink returns <base>/d/<roomID>#<token>. The fragment never reaches the
// relay.
func BuildLink(base, roomID, token string) string {
	return strings.TrimRight(base, "/") + "/d/" + roomID + "#" + token
}

// ParseLink extracts the room id and key token from a share link. A bare
// "<roomID>#<token>" is accepted too.
func ParseLink(link string) (roomID, token string, err error) {
	link = strings.TrimSpace(link)
	rest, token, ok := strings.Cut(link, "#")
	if !ok || token == "" {
		return "", "", ErrBadLink
	}

	if u, perr := url.Parse(rest); perr == nil && strings.Contains(u.Path, "/d/") {
		rest = u.Path[strings.LastIndex(u.Path, "/d/")+len("/d/"):]
	}
	roomID = strings.Trim(rest, "/")

	if !room.ValidID(roomID) {
		return "", "", ErrBadLink
	}
	return roomID, token, nil
}
