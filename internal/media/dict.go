package media

import (
	"fmt"
	"sort"
	"strings"

	astiav "github.com/asticode/go-astiav"
)

// DictPairs returns key=value pairs from a libav options dictionary, for
// logging what was actually set on a demuxer/decoder/encoder.
func DictPairs(d *astiav.Dictionary) []string {
	if d == nil {
		return nil
	}
	var pairs []string
	var prev *astiav.DictionaryEntry
	flags := astiav.NewDictionaryFlags(astiav.DictionaryFlagIgnoreSuffix)
	for {
		e := d.Get("", prev, flags)
		if e == nil {
			break
		}
		pairs = append(pairs, fmt.Sprintf("%s=%s", e.Key(), e.Value()))
		prev = e
	}
	sort.Strings(pairs)
	return pairs
}

// JoinDict renders a dictionary as a single space-separated line.
func JoinDict(d *astiav.Dictionary) string {
	return strings.Join(DictPairs(d), " ")
}
