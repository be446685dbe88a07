package handlesupportticket

import "time"

type Config struct {
	Timeout time.Duration
}
