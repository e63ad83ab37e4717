package news

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSection(t *testing.T) {
	assert.Equal(t, "politica", normalizeSection("Política"))
	assert.Equal(t, "economia", normalizeSection(" ECONOMÍA "))
	assert.Equal(t, "genero y diversidad", normalizeSection("Género y Diversidad"))
	assert.Equal(t, "", normalizeSection("  "))
}

func TestParseSpanishDate(t *testing.T) {
	d, err := parseSpanishDate("2", "abril", "2024")
	require.NoError(t, err)
	assert.Equal(t, day(2024, time.April, 2), d)

	d, err = parseSpanishDate("31", "Diciembre", "2019")
	require.NoError(t, err)
	assert.Equal(t, day(2019, time.December, 31), d)

	_, err = parseSpanishDate("5", "brumario", "2024")
	assert.Error(t, err)
}

func TestArticleToDocument(t *testing.T) {
	a := Article{
		ID:          "abc123",
		Outlet:      "proceso",
		Section:     "nacional",
		URL:         "https://www.proceso.com.mx/nacional/2024/3/5/nota/",
		Title:       "Una nota",
		Summary:     "Resumen",
		PublishedAt: day(2024, time.March, 5),
		Body:        "Texto de la nota",
	}
	doc := a.ToDocument()
	require.NoError(t, doc.Validate())
	assert.Equal(t, "abc123", doc.ID)
	assert.Equal(t, "html", doc.Source.Type)
	assert.Equal(t, "proceso", doc.Source.Outlet)
	assert.Equal(t, "Texto de la nota", doc.Content.Text)
	assert.Equal(t, "Una nota", doc.Content.Metadata["title"])
	assert.Equal(t, "nacional", doc.Content.Metadata["section"])
	assert.Equal(t, "Resumen", doc.Content.Metadata["summary"])

	failed := Article{Outlet: "proceso", URL: "https://example.mx/x", Error: "status 404"}
	doc = failed.ToDocument()
	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, "status 404", doc.Content.Metadata["error_message"])
}

func TestJornadaParseArticle(t *testing.T) {
	page := `<html><head>
<script type="application/ld+json">{
	"@context": "https://schema.org",
	"description": "Resumen del día",
	"headline": "La Jornada: Avanza la reforma"
}</script>
</head><body>
<div class="cabeza">Encabezado alterno</div>
<div id="article-text">
<div class="pie-foto">Foto: Cuartoscuro</div>
<p>Primer párrafo.</p>

<p>Segundo párrafo.</p>
<div class="credito-autor">Redacción</div>
</div>
</body></html>`

	src := NewJornada(nil, nil, nil)
	a := Article{URL: "https://www.jornada.com.mx/2024/03/05/politica/004n1pol"}
	require.NoError(t, src.ParseArticle([]byte(page), &a))

	assert.Equal(t, "Avanza la reforma", a.Title)
	assert.Equal(t, "Resumen del día", a.Summary)
	assert.Equal(t, "Primer párrafo.\nSegundo párrafo.", a.Body)
}

func TestJornadaParseArticleWithoutMetadata(t *testing.T) {
	page := `<html><body>
<div class="cabeza">Encabezado directo</div>
<div id="article-text"><p>Único párrafo.</p></div>
</body></html>`

	src := NewJornada(nil, nil, nil)
	a := Article{}
	require.NoError(t, src.ParseArticle([]byte(page), &a))

	assert.Equal(t, "Encabezado directo", a.Title)
	assert.Empty(t, a.Summary)
	assert.Equal(t, "Único párrafo.", a.Body)
}

func TestJornadaParseArticleMissingBody(t *testing.T) {
	src := NewJornada(nil, nil, nil)
	a := Article{}
	assert.Error(t, src.ParseArticle([]byte("<html><body><p>nada</p></body></html>"), &a))
}

func TestProcesoParseArticle(t *testing.T) {
	page := `<html><body>
<div class="fecha-y-seccion"><div class="fecha">miércoles, 3 de abril de 2024 · 18:05</div></div>
<article class="main-article">
<div class="cuerpo-nota">
<p>Primera&nbsp;línea.</p>
<div><p>Anidado que no cuenta.</p></div>
<p>Segunda línea.</p>
</div>
</article>
</body></html>`

	src := NewProceso(nil, nil)
	a := Article{}
	require.NoError(t, src.ParseArticle([]byte(page), &a))

	assert.Equal(t, "Primera línea.\nSegunda línea.", a.Body)
	assert.Equal(t, day(2024, time.April, 3), a.PublishedAt)
}

func TestProcesoParseArticleKeepsListingDate(t *testing.T) {
	page := `<html><body>
<article class="main-article"><div class="cuerpo-nota"><p>Texto.</p></div></article>
</body></html>`

	src := NewProceso(nil, nil)
	a := Article{PublishedAt: day(2024, time.March, 5)}
	require.NoError(t, src.ParseArticle([]byte(page), &a))
	assert.Equal(t, day(2024, time.March, 5), a.PublishedAt)
}

func TestEconomistaParseArticle(t *testing.T) {
	page := `<html><head>
<script type="application/ld+json">{"description":"Resumen breve","articleBody":"Texto completo del artículo."}</script>
</head><body></body></html>`

	src := NewEconomista(nil, nil, nil)
	a := Article{}
	require.NoError(t, src.ParseArticle([]byte(page), &a))
	assert.Equal(t, "Resumen breve", a.Summary)
	assert.Equal(t, "Texto completo del artículo.", a.Body)
}

func TestEconomistaParseArticleFallback(t *testing.T) {
	page := `<html><body>
<div class="resumeNew">Resumen HTML</div>
<div id="readNote">Cuerpo HTML</div>
</body></html>`

	src := NewEconomista(nil, nil, nil)
	a := Article{}
	require.NoError(t, src.ParseArticle([]byte(page), &a))
	assert.Equal(t, "Resumen HTML", a.Summary)
	assert.Equal(t, "Cuerpo HTML", a.Body)
}

func TestFinancieroParseArticle(t *testing.T) {
	page := `<html><body><article class="article-body-wrapper"><p>Uno</p><article class="related"><p>Relacionado</p></article><div>Dos</div></article></body></html>`

	src := NewFinanciero(nil, nil, nil)
	a := Article{}
	require.NoError(t, src.ParseArticle([]byte(page), &a))
	assert.Equal(t, "Uno\nDos", a.Body)
}

func TestParseISODate(t *testing.T) {
	for _, raw := range []string{
		"2024-03-05T10:11:12.345Z",
		"2024-03-05T10:11:12Z",
		"2024-03-05T10:11:12",
	} {
		d, err := parseISODate(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, 2024, d.Year())
		assert.Equal(t, time.March, d.Month())
	}
	_, err := parseISODate("ayer")
	assert.Error(t, err)
}

func TestAnimalArticleURL(t *testing.T) {
	src := NewAnimalPolitico(nil, nil, nil)

	node := animalNode{Slug: "voto-2024", CategoryPrimarySlug: "elecciones"}
	u, err := src.articleURL(node, AnimalSection{Name: "politica", TypeName: "Poltica"})
	require.NoError(t, err)
	assert.Equal(t, "https://animalpolitico.com/politica/elecciones/voto-2024", u)

	node = animalNode{Slug: "voto-2024"}
	u, err = src.articleURL(node, AnimalSection{Name: "internacional", TypeName: "Internacional"})
	require.NoError(t, err)
	assert.Equal(t, "https://animalpolitico.com/internacional/voto-2024", u)
}

func TestAnimalArticleURLHablemosDe(t *testing.T) {
	src := NewAnimalPolitico(nil, nil, nil)
	section := AnimalSection{Name: "hablemos_de", TypeName: "HablemosDe"}

	var node animalNode
	node.Slug = "ahorro"
	require.NoError(t, json.Unmarshal(
		[]byte(`{"edges":[{"node":{"slug":"otros"}},{"node":{"slug":"finanzas"}}]}`),
		&node.Categories,
	))

	u, err := src.articleURL(node, section)
	require.NoError(t, err)
	assert.Equal(t, "https://animalpolitico.com/hablemos-de/finanzas/ahorro", u)

	node.Categories.Edges = nil
	_, err = src.articleURL(node, section)
	assert.Error(t, err)
}

func TestAnimalArticleURLAnalisis(t *testing.T) {
	src := NewAnimalPolitico(nil, nil, nil)
	section := AnimalSection{Name: "analisis", TypeName: "NotaDePlumaje"}

	node := animalNode{Slug: "columna", BlogSlug: "blog-invitado"}
	u, err := src.articleURL(node, section)
	require.NoError(t, err)
	assert.Equal(t, "https://animalpolitico.com/analisis/invitades/columna", u)

	node = animalNode{Slug: "columna", BlogSlug: "el-blog", BlogAuthor: json.RawMessage("null")}
	u, err = src.articleURL(node, section)
	require.NoError(t, err)
	assert.Equal(t, "https://animalpolitico.com/analisis/autores/el-blog/columna", u)

	node = animalNode{Slug: "columna", BlogSlug: "ong-datos", BlogAuthor: json.RawMessage(`"María"`)}
	u, err = src.articleURL(node, section)
	require.NoError(t, err)
	assert.Equal(t, "https://animalpolitico.com/analisis/organizaciones/ong-datos/columna", u)
}

func TestAnimalParseNode(t *testing.T) {
	src := NewAnimalPolitico(nil, nil, nil)
	node := animalNode{
		DatabaseID:          json.Number("123"),
		Title:               "Titular",
		Slug:                "titular",
		ContentRendered:     "<p>Hola <b>mundo</b></p>",
		CategoryPrimarySlug: "elecciones",
		PostExcerpt:         "Extracto",
		Date:                "2024-03-05T10:00:00",
	}
	a, err := src.parseNode(node, AnimalSection{Name: "politica", TypeName: "Poltica"})
	require.NoError(t, err)
	assert.Equal(t, "123", a.ID)
	assert.Equal(t, "Hola mundo", a.Body)
	assert.Equal(t, "Extracto", a.Summary)
	assert.Equal(t, day(2024, time.March, 5).Add(10*time.Hour), a.PublishedAt)

	node.Date = "05/03/2024"
	_, err = src.parseNode(node, AnimalSection{Name: "politica", TypeName: "Poltica"})
	assert.Error(t, err)
}

func TestAnimalParseArticleSkipsAttachmentsAndRedirects(t *testing.T) {
	page := `<html><body>
<div class="post-details">Párrafo real.</div>
<div class="post-details"><figure><img src="x.jpg"/></figure>Pie de imagen</div>
<div class="post-details">Lee más: otra nota que no es de este artículo</div>
<div class="post-details">Entérate también | otra más</div>
<div class="post-details">Cierre del texto.</div>
</body></html>`

	src := NewAnimalPolitico(nil, nil, nil)
	a := Article{}
	require.NoError(t, src.ParseArticle([]byte(page), &a))
	assert.Equal(t, "Párrafo real.\nCierre del texto.", a.Body)
}

func TestAnimalSectionQuery(t *testing.T) {
	sec := AnimalSection{Name: "politica", TypeName: "Poltica", OpOverride: "Politica"}
	assert.Equal(t, "FetchAllPolitica", sec.operationName())
	assert.Equal(t, "allPoltica", sec.resultsKey())
	assert.Contains(t, sec.query(), "query FetchAllPolitica($where: RootQueryToPoltica")
	assert.Contains(t, sec.query(), "allPoltica(where: $where)")

	sec = AnimalSection{Name: "analisis", TypeName: "NotaDePlumaje", KeyOverride: "notasDePlumaje", ExtraFields: animalAnalisisFields}
	assert.Equal(t, "FetchAllNotaDePlumaje", sec.operationName())
	assert.Equal(t, "notasDePlumaje", sec.resultsKey())
	assert.Contains(t, sec.query(), "blogSlug")
}
