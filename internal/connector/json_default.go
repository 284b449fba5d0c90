//go:build !sonic

package connector

import "github.com/goccy/go-json"

var jsonUnmarshal = json.Unmarshal
