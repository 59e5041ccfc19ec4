package relay

import "errors"

var (
	ErrMalformedJoin   = errors.New("malformed_join_request")
	ErrAlreadyInRoom   = errors.New("already_in_room")
	ErrPeerIDInUse     = errors.New("peer_id_in_use")
	ErrParticipantLeft = errors.New("participant_left")
	ErrNotJoined       = errors.New("not_joined")
	ErrMissingTarget   = errors.New("missing_recipient")
)
