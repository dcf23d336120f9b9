package models

import "time"

// GetString returns the string stored under key or "".
func (f Fields) GetString(key string) string {
	if f == nil {
		return ""
	}
	val, ok := f[key]
	if !ok {
		return ""
	}
	switch v := val.(type) {
	case string:
		return v
	case Status:
		return string(v)
	default:
		return ""
	}
}

// GetTime returns the instant stored under key or the zero time.
func (f Fields) GetTime(key string) time.Time {
	if f == nil {
		return time.Time{}
	}
	val, ok := f[key]
	if !ok {
		return time.Time{}
	}
	t, err := ToTime(val)
	if err != nil {
		return time.Time{}
	}
	return t
}

// GetInt64 returns the integer stored under key or 0.
func (f Fields) GetInt64(key string) int64 {
	if f == nil {
		return 0
	}
	val, ok := f[key]
	if !ok {
		return 0
	}
	switch v := val.(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	case int:
		return int64(v)
	default:
		return 0
	}
}

// Slot is a bookable time with its occupancy for a given date.
type Slot struct {
	Time  string `json:"time"`
	Taken bool   `json:"taken"`
}

// Stats summarises a list of appointments for the admin panel.
type Stats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Approved  int `json:"approved"`
	Completed int `json:"completed"`
}
