/**
 * @description
 * Static catalog of the participating banks. Each code maps to the base URL
 * of that bank's account-verification API. The catalog is fixed by the
 * clearing network agreement; banks are not added or removed at runtime.
 *
 * @notes
 * - B00 is the mock bank used for testing and simulation: it is always
 *   treated as online and its accounts verify successfully without any
 *   outbound call.
 */

package bank

// MockBankCode is the designated test bank. Always reachable, pre-validated.
const MockBankCode = "B00"

// baseURLs maps each registered bank code to its verification API address.
var baseURLs = map[string]string{
	"B01": "http://86.48.22.73",
	"B02": "https://us-central1-api-banco-web.cloudfunctions.net",
	"B03": "https://bnastralis-api.up.railway.app",
	"B04": "https://proyecto02-backend.onrender.com",
	"B05": "https://bank-crap-servi.onrender.com",
	"B06": "https://bdproyectoweb-3.onrender.com",
	"B07": "https://py1dpw-production.up.railway.app",
	"B08": "https://api.srlgestock.space",
}

// BaseURL returns the verification base address for a bank code. The second
// return is false for the mock bank and for codes outside the catalog.
func BaseURL(code string) (string, bool) {
	url, ok := baseURLs[code]
	return url, ok
}

// Catalog returns a copy of the code → base URL mapping, so callers can wire
// it into clients without being able to mutate the canonical table.
func Catalog() map[string]string {
	out := make(map[string]string, len(baseURLs))
	for code, url := range baseURLs {
		out[code] = url
	}
	return out
}
