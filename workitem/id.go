package workitem

import (
	"fmt"
	"strconv"
	"strings"
)

// ExtractID returns the work item id encoded in the last path segment of a
// relation URL, e.g. https://dev.azure.com/org/_apis/wit/workItems/42 -> 42.
func ExtractID(url string) (int, error) {
	segment := url[strings.LastIndex(url, "/")+1:]

	id, err := strconv.Atoi(segment)
	if err != nil {
		return 0, fmt.Errorf("%w: %q has no numeric id segment", ErrMalformedURL, url)
	}
	if id <= 0 {
		return 0, fmt.Errorf("%w: %q has non-positive id %d", ErrMalformedURL, url, id)
	}

	return id, nil
}
