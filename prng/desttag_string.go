// Code generated by running "go generate" by hand, in the shape
// github.com/alvaroloes/enumer would produce for DestTag. DO NOT EDIT
// without regenerating.

package prng

import "fmt"

const _DestTagName = "SecretKeyWotsKeyNtruKey"

var _DestTagIndex = [...]uint8{0, 9, 16, 23}

func (d DestTag) String() string {
	if d < 0 || int(d) >= len(_DestTagIndex)-1 {
		return fmt.Sprintf("DestTag(%d)", int(d))
	}
	return _DestTagName[_DestTagIndex[d]:_DestTagIndex[d+1]]
}
