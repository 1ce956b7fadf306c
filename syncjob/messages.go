package syncjob

import (
	"errors"
	"fmt"
	"time"
)

// Client-facing texts. Validation and failure texts are matched verbatim by clients.
const (
	MsgDatesRequired  = "Start Date and End Date are required."
	MsgMembersInvalid = "Member list is missing or invalid in the request."
	MsgInvalidDate    = "Invalid date format, expected YYYY-MM-DD."
	MsgDateOrder      = "Start Date must not be after End Date."
	MsgInvalidBody    = "Request body must be a JSON object."
	MsgNoMembers      = "Sync complete. No members to process."
	MsgInternal       = "An internal server error occurred during sync."
	MsgDone           = "Sinkronisasi selesai!"
	MsgWaitingForSlot = "Menunggu giliran sinkronisasi..."
	msgStartEndpoint  = "[%d/%d] Memulai dari #%s..."
	msgFetchingBatch  = "[#%s] Request batch ke-%d..."
	msgBatchComplete  = "[#%s] Batch ke-%d selesai. Ditemukan %d pesan."
	msgAccumulated    = "[#%s] Total pesan terkumpul: %d."
	msgFetchRetrying  = "Error saat mengambil data dari #%s, mencoba lagi dalam %s..."
	msgNoAccess       = "Tidak ada akses ke #%s"
	msgChannelSkipped = "Gagal mengambil data dari #%s, channel dilewati."
	msgFilterStart    = "Memulai filter untuk %d pesan dari #%s..."
	msgFilterItem     = "Memfilter #%s: %d/%d"
	msgEndpointDone   = "Selesai #%s. Ditemukan %d laporan relevan."
)

// fetchMessage renders a FetchUpdate for the client.
func fetchMessage(channel string, u FetchUpdate) string {
	switch u.Kind {
	case FetchingBatch:
		return fmt.Sprintf(msgFetchingBatch, channel, u.Batch)
	case FetchComplete:
		return fmt.Sprintf(msgBatchComplete, channel, u.Batch, u.Count)
	case MessagesAccumulated:
		return fmt.Sprintf(msgAccumulated, channel, u.Total)
	case FetchRetrying:
		return fmt.Sprintf(msgFetchRetrying, channel, u.Wait.Round(time.Millisecond))
	case FetchError:
		if errors.Is(u.Err, ErrPermissionDenied) {
			return fmt.Sprintf(msgNoAccess, channel)
		}
		return fmt.Sprintf(msgChannelSkipped, channel)
	default:
		return ""
	}
}
