package admin

import "strconv"

func parsePID(s string) (int, error) {
	return strconv.Atoi(s)
}
