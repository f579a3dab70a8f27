package app

import "github.com/google/uuid"

// ownerToken identifies one lock acquisition by this instance.
func ownerToken(instanceID string) string {
	return instanceID + ":" + uuid.NewString()[:8]
}
