//go:build sonic

package connector

import "github.com/bytedance/sonic"

var jsonUnmarshal = sonic.Unmarshal
