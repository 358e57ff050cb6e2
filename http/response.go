package http

import (
	"fmt"

	"github.com/sagarc03/sluice"
)

// RespondError sends a plain-text "Error <status>: <message>" response.
// It returns FailedNoFurtherAction when a response already started or the
// peer is gone.
func RespondError(wc sluice.WritableConnection, status int, message string) sluice.Outcome {
	return wc.SendData(sluice.SendDataOptions{
		Data:   []byte(fmt.Sprintf("Error %d: %s", status, message)),
		Status: status,
	})
}
