package placenames

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(cities, estates []string) Config {
	return Config{
		City: CategoryConfig{
			Names:       cities,
			Template:    DefaultCityTemplate,
			Placeholder: DefaultCityPlaceholder,
		},
		Estate: CategoryConfig{
			Names:       estates,
			Template:    DefaultEstateTemplate,
			Placeholder: DefaultEstatePlaceholder,
		},
	}
}

func TestRedactNoAdministrativeCue(t *testing.T) {
	got, err := RedactPlaces("hello world", testConfig([]string{"campeche"}, []string{"campeche"}))
	require.NoError(t, err)
	assert.Equal(t, "hello world", got)
}

func TestRedactEndToEnd(t *testing.T) {
	cfg := testConfig(nil, []string{"jalisco"})
	cfg.Estate.Placeholder = "[ESTADO]"

	got, err := RedactPlaces("El diputado viajó al Estado de Jalisco para dar un discurso.", cfg)
	require.NoError(t, err)
	assert.Equal(t, "El diputado viajó al [ESTADO] para dar un discurso.", got)
}

func TestRedactLongerSpanWins(t *testing.T) {
	// "León" the city is a prefix of the synthetic state name, so the
	// state span contains the city span; only the longer one survives.
	got, err := RedactPlaces(
		"Viajó al Estado de León Guanajuato.",
		testConfig([]string{"leon"}, []string{"leon guanajuato"}),
	)
	require.NoError(t, err)
	assert.Equal(t, "Viajó al [ESTADO].", got)
}

func TestRedactSuffixContainment(t *testing.T) {
	// Shared end offset between the bare city name and the longer state
	// name ending in it: the smaller start wins.
	got, err := RedactPlaces(
		"Se reunieron en el Estado de Baja California Sur, dijo.",
		testConfig([]string{"sur"}, []string{"baja california sur"}),
	)
	require.NoError(t, err)
	assert.Equal(t, "Se reunieron en el [ESTADO], dijo.", got)
}

func TestRedactExactTieDisambiguation(t *testing.T) {
	cfg := testConfig([]string{"campeche"}, []string{"campeche"})

	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "municipios cue picks city",
			text: "En los municipios de Calkiní y Campeche, se aprobó la obra.",
			want: "En los municipios de Calkiní y [MUNICIPIO], se aprobó la obra.",
		},
		{
			name: "estados cue picks estate",
			text: "En los estados de Sonora y Campeche, se aprobó la obra.",
			want: "En los estados de Sonora y [ESTADO], se aprobó la obra.",
		},
		{
			name: "no cue defaults to estate",
			text: "El Distrito Federal envió apoyo a Campeche de inmediato.",
			want: "El Distrito Federal envió apoyo a [ESTADO] de inmediato.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RedactPlaces(tt.text, cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRedactPrefixedCityBeatsBareEstate(t *testing.T) {
	// "Ciudad de Campeche" matched with its prefix contains the bare
	// state match, so containment decides before any cue lookup.
	got, err := RedactPlaces(
		"Llegaron a la Ciudad de Campeche muy temprano.",
		testConfig([]string{"campeche"}, []string{"campeche"}),
	)
	require.NoError(t, err)
	assert.Equal(t, "Llegaron a la [MUNICIPIO] muy temprano.", got)
}

func TestRedactFalsePositiveGuard(t *testing.T) {
	// The folded search finds "jalisco", but the original text is a
	// lowercase common-noun use, so the span must be left alone.
	text := "En los municipios de Colima se baila el jalisco tradicional."
	got, err := RedactPlaces(text, testConfig(nil, []string{"jalisco"}))
	require.NoError(t, err)
	assert.Equal(t, text, got)
}

func TestRedactAlreadyRedactedIsNoOp(t *testing.T) {
	cfg := testConfig([]string{"campeche"}, []string{"jalisco"})

	once, err := RedactPlaces("Autoridades del Estado de Jalisco y, aparte, de Campeche firmaron.", cfg)
	require.NoError(t, err)
	require.Contains(t, once, "[ESTADO]")

	twice, err := RedactPlaces(once, cfg)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestRedactMultipleReplacements(t *testing.T) {
	got, err := RedactPlaces(
		"El Estado de Sonora limita con el Estado de Sinaloa y con Chihuahua.",
		testConfig(nil, []string{"sonora", "sinaloa", "chihuahua"}),
	)
	require.NoError(t, err)
	assert.Equal(t, "El [ESTADO] limita con el [ESTADO] y con [ESTADO].", got)
}

func TestRedactorReuse(t *testing.T) {
	r, err := New(testConfig([]string{"monterrey"}, []string{"nuevo leon"}))
	require.NoError(t, err)

	first := r.Redact("Hubo sesión en el Estado de Nuevo León ayer.")
	assert.Equal(t, "Hubo sesión en el [ESTADO] ayer.", first)

	second := r.Redact("La obra en Monterrey, municipios de la zona, avanza.")
	assert.Equal(t, "La obra en [MUNICIPIO], municipios de la zona, avanza.", second)
}

func TestNewRejectsTemplateWithoutMarker(t *testing.T) {
	cfg := testConfig(nil, []string{"jalisco"})
	cfg.Estate.Template = `\bjalisco\b`

	_, err := New(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), NameMarker)
}

func TestNewRejectsMalformedTemplate(t *testing.T) {
	cfg := testConfig([]string{"leon"}, nil)
	cfg.City.Template = `\b({name_value}\b`

	_, err := New(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leon")
}

func TestDefaultConfigCompiles(t *testing.T) {
	r, err := New(DefaultConfig())
	require.NoError(t, err)

	got := r.Redact("La iniciativa beneficia a los municipios de Guadalajara y Zapopan, Estado de Jalisco.")
	assert.Contains(t, got, "[MUNICIPIO]")
	assert.Contains(t, got, "[ESTADO]")
	assert.NotContains(t, got, "Guadalajara")
	assert.NotContains(t, got, "Jalisco")
}

func TestDefaultConfigAccentedInput(t *testing.T) {
	r, err := New(DefaultConfig())
	require.NoError(t, err)

	got := r.Redact("El congreso del Estado de Michoacán aprobó el dictamen.")
	assert.Equal(t, "El congreso del [ESTADO] aprobó el dictamen.", got)
}

func BenchmarkRedact(b *testing.B) {
	r, err := New(DefaultConfig())
	require.NoError(b, err)

	text := strings.Repeat(
		"La comisión visitó los municipios de Calkiní y Campeche antes de volver al Estado de Yucatán. ",
		20,
	)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.Redact(text)
	}
}
