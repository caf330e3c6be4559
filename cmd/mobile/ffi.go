// Package main provides the FFI bridge for mobile platforms.
// Build as shared library: libkuapa.so (Android) / kuapa.framework (iOS)
// All exported functions use C calling convention and return JSON strings that
// must be released with FreeString.
package main

/*
#include <stdlib.h>
*/
import "C"
import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
	"unsafe"

	"github.com/kuapa/kuapa/backend/internal/app"
	"github.com/kuapa/kuapa/backend/internal/config"
	"github.com/kuapa/kuapa/backend/internal/models"
	"github.com/kuapa/kuapa/backend/internal/sync/scheduler"
)

var (
	mu      sync.Mutex
	core    *app.App
	lastErr string
	lastMu  sync.RWMutex
)

func setLastError(err string) {
	lastMu.Lock()
	defer lastMu.Unlock()
	lastErr = err
}

func current() *app.App {
	mu.Lock()
	defer mu.Unlock()
	if core == nil {
		setLastError("core not initialized")
	}
	return core
}

// toJSON serializes v for the caller; nil signals an error retrievable through
// GetLastError.
func toJSON(v interface{}) *C.char {
	data, err := json.Marshal(v)
	if err != nil {
		setLastError(fmt.Sprintf("failed to serialize: %v", err))
		return nil
	}
	return C.CString(string(data))
}

//export Init
// Init opens the core in dataDir. It returns 0 on success and -1 on failure.
func Init(dataDir *C.char) C.int {
	mu.Lock()
	defer mu.Unlock()
	if core != nil {
		return 0
	}

	cfg, err := config.Load("", "")
	if err != nil {
		setLastError(err.Error())
		return -1
	}
	if dir := C.GoString(dataDir); dir != "" {
		cfg.DataDir = dir
	}

	a, err := app.Open(context.Background(), cfg)
	if err != nil {
		setLastError(fmt.Sprintf("failed to open core: %v", err))
		return -1
	}
	a.Start(context.Background())
	core = a
	return 0
}

//export Cleanup
// Cleanup flushes every store and closes the core.
func Cleanup() {
	mu.Lock()
	defer mu.Unlock()
	if core != nil {
		if err := core.Close(10 * time.Second); err != nil {
			setLastError(err.Error())
		}
		core = nil
	}
}

//export GetLastError
// GetLastError returns the last error message.
func GetLastError() *C.char {
	lastMu.RLock()
	defer lastMu.RUnlock()
	return C.CString(lastErr)
}

// =====================================================
// Scan Operations
// =====================================================

//export ScanCapture
// ScanCapture classifies a capture, or queues it when that is not possible.
func ScanCapture(imageData, cropType, notes *C.char) *C.char {
	a := current()
	if a == nil {
		return nil
	}
	result, err := a.Scheduler.Capture(context.Background(), scheduler.CaptureRequest{
		Image:    C.GoString(imageData),
		CropType: models.CropType(C.GoString(cropType)),
		Notes:    C.GoString(notes),
	})
	if result.Record == nil && result.Queued == nil {
		setLastError(err.Error())
		return nil
	}
	body := map[string]interface{}{
		"record":  result.Record,
		"pending": result.Queued,
	}
	if err != nil {
		body["error"] = err.Error()
	}
	return toJSON(body)
}

//export ScanHistory
// ScanHistory returns the history, most recent first.
func ScanHistory() *C.char {
	a := current()
	if a == nil {
		return nil
	}
	return toJSON(a.Scans.History())
}

//export ScanDelete
// ScanDelete removes one record.
func ScanDelete(id *C.char) {
	if a := current(); a != nil {
		a.Scans.Remove(C.GoString(id))
	}
}

//export ScanStats
// ScanStats returns history statistics.
func ScanStats() *C.char {
	a := current()
	if a == nil {
		return nil
	}
	return toJSON(a.Scans.Stats())
}

// =====================================================
// Sync Operations
// =====================================================

//export PendingList
// PendingList returns the queued captures in creation order.
func PendingList() *C.char {
	a := current()
	if a == nil {
		return nil
	}
	return toJSON(a.Queue.List())
}

//export PendingRetry
// PendingRetry runs one attempt for a queued capture.
func PendingRetry(id *C.char) *C.char {
	a := current()
	if a == nil {
		return nil
	}
	record, err := a.Scheduler.Retry(context.Background(), C.GoString(id))
	if err != nil {
		setLastError(err.Error())
		return nil
	}
	return toJSON(record)
}

//export SetOnline
// SetOnline reports connectivity; coming back online triggers a retry pass.
func SetOnline(online C.int) {
	if a := current(); a != nil {
		a.Scheduler.SetOnlineStatus(online != 0)
	}
}

// =====================================================
// Notification Operations
// =====================================================

//export NotificationList
// NotificationList returns the notifications and unread count.
func NotificationList() *C.char {
	a := current()
	if a == nil {
		return nil
	}
	return toJSON(a.Notifications.State())
}

//export NotificationMarkRead
// NotificationMarkRead marks one notification read.
func NotificationMarkRead(id *C.char) {
	if a := current(); a != nil {
		a.Notifications.MarkAsRead(C.GoString(id))
	}
}

//export FreeString
func FreeString(s *C.char) {
	if s != nil {
		C.free(unsafe.Pointer(s))
	}
}

func main() {
	// Main function is required for c-shared build mode
	// but is not actually executed when used as shared library
}
