package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/emberchat/ember/internal/models"
)

// parsePeer resolves a conversation argument. Accepted forms:
//
//	user:42    direct conversation with user 42
//	chat:7     group thread 7
//	42         shorthand for user:42
func parsePeer(arg string) (models.Peer, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return models.Peer{}, fmt.Errorf("peer is required (user:<id> or chat:<id>)")
	}

	kind := models.PeerKindUser
	idPart := arg
	if i := strings.IndexByte(arg, ':'); i >= 0 {
		switch arg[:i] {
		case "user":
			kind = models.PeerKindUser
		case "chat":
			kind = models.PeerKindChat
		default:
			return models.Peer{}, fmt.Errorf("unknown peer kind %q (want user or chat)", arg[:i])
		}
		idPart = arg[i+1:]
	}

	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id <= 0 {
		return models.Peer{}, fmt.Errorf("invalid peer id %q", idPart)
	}
	return models.Peer{Kind: kind, ID: id}, nil
}
