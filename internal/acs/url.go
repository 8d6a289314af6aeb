package acs

import (
	"fmt"
	"net/url"
	"strings"
)

// BaseURL is the Census Bureau data API root.
const BaseURL = "https://api.census.gov/data"

// TractsURL builds the ACS5 query for every tract in a state:
//
//	{BaseURL}/{year}/acs/acs5?get=NAME,GEO_ID,{fields}&for=tract:*&in=state:{state}&key={key}
func TractsURL(year string, fields []string, state, key string) string {
	get := make([]string, 0, len(fields)+2)
	get = append(get, "NAME", "GEO_ID")
	for _, f := range fields {
		get = append(get, url.QueryEscape(f))
	}
	return fmt.Sprintf("%s/%s/acs/acs5?get=%s&for=tract:*&in=state:%s&key=%s",
		BaseURL, url.PathEscape(year), strings.Join(get, ","), url.QueryEscape(state), url.QueryEscape(key))
}
