package carrier

// Коды перевозчиков шлюза -> отображаемое имя.
var carrierNames = map[string]string{
	"100001": "DHL Express",
	"100002": "UPS",
	"100003": "FedEx",
	"100004": "TNT",
	"21051":  "USPS",
	"3011":   "China Post",
	"3013":   "China EMS",
	"190271": "Cainiao",
	"7041":   "DHL Paket",
	"6051":   "Royal Mail",
	"3041":   "Canada Post",
	"1151":   "Australia Post",
	"19241":  "Japan Post",
	"11031":  "La Poste",
	"100007": "DPD",
	"100005": "GLS",
}

// CarrierName resolves a display name; unknown codes fall back to the code itself.
func CarrierName(code string) string {
	if n, ok := carrierNames[code]; ok {
		return n
	}
	return code
}
