package analyzer

import (
	"fmt"
	"strings"
	"testing"
)

var sampleTexts = map[string]string{
	"short": "La fattura elettronica è stata inviata al cliente",
	"medium": `Il sistema di interscambio riceve le fatture elettroniche, verifica
        la correttezza formale dei dati e le recapita al destinatario. In caso di
        scarto il trasmittente riceve una notifica con il codice dell'errore e deve
        correggere il documento prima di inviarlo di nuovo entro cinque giorni.`,
	"long": strings.Repeat(`Le note di credito rettificano in tutto o in parte
        l'importo di una fattura già emessa. Devono riportare il riferimento al
        documento originale, la causale della variazione e l'aliquota applicata.
        La conservazione sostitutiva garantisce l'integrità e la leggibilità dei
        documenti fiscali per tutto il periodo previsto dalla normativa. `, 20),
}

func BenchmarkAnalyze(b *testing.B) {
	for _, profile := range []string{"italian", "simple"} {
		a, err := NewForProfile(profile, Options{})
		if err != nil {
			b.Fatal(err)
		}
		for name, text := range sampleTexts {
			b.Run(profile+"/"+name, func(b *testing.B) {
				b.ReportAllocs()
				b.SetBytes(int64(len(text)))
				for i := 0; i < b.N; i++ {
					if _, err := a.Analyze(text); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}

func BenchmarkAnalyzeParallel(b *testing.B) {
	a, err := NewForProfile("italian", Options{})
	if err != nil {
		b.Fatal(err)
	}
	text := sampleTexts["medium"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _ = a.Analyze(text)
		}
	})
}

func BenchmarkAnalyzeStripMarkup(b *testing.B) {
	a, err := NewForProfile("italian", Options{StripMarkup: true})
	if err != nil {
		b.Fatal(err)
	}
	text := "<p>" + strings.ReplaceAll(sampleTexts["medium"], ".", ".</p><p>") + "</p>"
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	for i := 0; i < b.N; i++ {
		_, _ = a.Analyze(text)
	}
}

func BenchmarkAnalyzeVaryingSize(b *testing.B) {
	a, err := NewForProfile("italian", Options{})
	if err != nil {
		b.Fatal(err)
	}
	base := "fattura elettronica nota di credito conservazione sostitutiva "
	for _, size := range []int{10, 100, 500, 1000, 5000} {
		text := strings.Repeat(base, size/len(base)+1)[:size]
		b.Run(fmt.Sprintf("bytes_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_, _ = a.Analyze(text)
			}
		})
	}
}
