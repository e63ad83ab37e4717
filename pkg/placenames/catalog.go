package placenames

// Default placeholders and templates used by DefaultConfig. The templates
// accept an optional administrative prefix so "Estado de Jalisco" redacts
// as one span rather than leaving a dangling "Estado de".
const (
	DefaultCityPlaceholder   = "[MUNICIPIO]"
	DefaultEstatePlaceholder = "[ESTADO]"

	DefaultCityTemplate   = `\b(ciudad de |municipios? de )?{name_value}\b`
	DefaultEstateTemplate = `\b(estados? de )?{name_value}\b`
)

// estateNames are the 32 federal entities, folded.
var estateNames = []string{
	"aguascalientes",
	"baja california",
	"baja california sur",
	"campeche",
	"chiapas",
	"chihuahua",
	"ciudad de mexico",
	"coahuila",
	"colima",
	"durango",
	"guanajuato",
	"guerrero",
	"hidalgo",
	"jalisco",
	"mexico",
	"michoacan",
	"morelos",
	"nayarit",
	"nuevo leon",
	"oaxaca",
	"puebla",
	"queretaro",
	"quintana roo",
	"san luis potosi",
	"sinaloa",
	"sonora",
	"tabasco",
	"tamaulipas",
	"tlaxcala",
	"veracruz",
	"yucatan",
	"zacatecas",
}

// cityNames are the municipalities that actually show up in gazette and
// news text: the state capitals plus the large metros. Several collide
// with a state name on purpose; the resolver exists for exactly those.
var cityNames = []string{
	"acapulco",
	"aguascalientes",
	"campeche",
	"cancun",
	"chetumal",
	"chihuahua",
	"chilpancingo",
	"ciudad juarez",
	"ciudad victoria",
	"colima",
	"cuernavaca",
	"culiacan",
	"durango",
	"ecatepec",
	"guadalajara",
	"guanajuato",
	"hermosillo",
	"la paz",
	"leon",
	"merida",
	"mexicali",
	"monterrey",
	"morelia",
	"naucalpan",
	"oaxaca",
	"pachuca",
	"puebla",
	"queretaro",
	"saltillo",
	"san luis potosi",
	"tepic",
	"tijuana",
	"tlaxcala",
	"toluca",
	"torreon",
	"tuxtla gutierrez",
	"villahermosa",
	"xalapa",
	"zacatecas",
}

// DefaultConfig returns the stock Mexican catalogs with the default
// templates and placeholders. The slices are shared; treat them as
// read-only and build a custom Config to deviate.
func DefaultConfig() Config {
	return Config{
		City: CategoryConfig{
			Names:       cityNames,
			Template:    DefaultCityTemplate,
			Placeholder: DefaultCityPlaceholder,
		},
		Estate: CategoryConfig{
			Names:       estateNames,
			Template:    DefaultEstateTemplate,
			Placeholder: DefaultEstatePlaceholder,
		},
	}
}
