package scheduler

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// LockOwner is written into a held lock file so operators can tell which
// gateway is running a job.
type LockOwner struct {
	Job   string    `json:"job"`
	PID   int       `json:"pid"`
	Host  string    `json:"host"`
	Since time.Time `json:"since"`
}

func currentOwner(job string) LockOwner {
	host, _ := os.Hostname()
	return LockOwner{Job: job, PID: os.Getpid(), Host: host, Since: time.Now().UTC()}
}

// ReadLockOwner reads the owner record of a lock file. A lock file that is
// missing or empty means nobody holds it.
func ReadLockOwner(path string) (LockOwner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return LockOwner{}, err
	}
	if len(data) == 0 {
		return LockOwner{}, fmt.Errorf("lock %s has no owner record", path)
	}
	var o LockOwner
	if err := json.Unmarshal(data, &o); err != nil {
		return LockOwner{}, fmt.Errorf("lock %s: %w", path, err)
	}
	return o, nil
}

func writeOwner(f *os.File, job string) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	return json.NewEncoder(f).Encode(currentOwner(job))
}
