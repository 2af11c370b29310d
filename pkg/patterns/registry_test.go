package patterns

import "testing"

func TestRegistryInitializes(t *testing.T) {
	r := Get()
	if r.TotalPatterns() == 0 {
		t.Fatal("registry is empty")
	}

	for _, cat := range []Category{
		CategoryObfuscation,
		CategoryImpersonation,
		CategoryHarvest,
		CategoryRedirect,
		CategoryMalware,
	} {
		if r.CategoryCount(cat) == 0 {
			t.Errorf("category %s has no patterns", cat)
		}
	}
}

func TestGetIsSingleton(t *testing.T) {
	if Get() != Get() {
		t.Error("Get must return the same registry")
	}
}

func TestMatchAny(t *testing.T) {
	r := Get()
	cases := []struct {
		name     string
		url      string
		cats     []Category
		wantName string
	}{
		{
			"raw ip host",
			"http://192.168.12.44/login",
			[]Category{CategoryObfuscation},
			"ip_literal_host",
		},
		{
			"userinfo trick",
			"https://paypal.com@evil.example/",
			[]Category{CategoryObfuscation},
			"userinfo_trick",
		},
		{
			"digit substitution",
			"https://paypa1.example/",
			[]Category{CategoryImpersonation},
			"digit_substitution",
		},
		{
			"brand keyword compound",
			"https://secure-paypal.example/",
			[]Category{CategoryImpersonation},
			"brand_keyword_compound",
		},
		{
			"sensitive query",
			"https://example.com/form?cvv=123",
			[]Category{CategoryHarvest},
			"sensitive_query",
		},
		{
			"redirect param",
			"https://example.com/out?next=https://evil.example",
			[]Category{CategoryRedirect},
			"redirect_param",
		},
		{
			"double extension",
			"https://example.com/invoice.pdf.zip",
			[]Category{CategoryMalware},
			"archive_double_extension",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := r.MatchAny(tc.url, tc.cats...)
			if p == nil {
				t.Fatalf("no match for %s", tc.url)
			}
			if p.Name != tc.wantName {
				t.Errorf("matched %s, want %s", p.Name, tc.wantName)
			}
		})
	}
}

func TestMatchAnyCleanURL(t *testing.T) {
	r := Get()
	clean := "https://www.example.com/articles/2026/go-generics"
	if p := r.MatchAny(clean,
		CategoryObfuscation, CategoryImpersonation,
		CategoryHarvest, CategoryRedirect, CategoryMalware); p != nil {
		t.Errorf("clean URL matched %s (%s)", p.Name, p.Description)
	}
}

func TestMatchAllAccumulates(t *testing.T) {
	r := Get()
	url := "http://192.168.1.5/login?password=x"
	matches := r.MatchAll(url, CategoryObfuscation, CategoryHarvest)
	if len(matches) < 3 {
		t.Errorf("matches = %d, want at least 3 (ip host, login path, sensitive query)", len(matches))
	}
	for _, m := range matches {
		if m.Severity <= 0 || m.Severity > 100 {
			t.Errorf("pattern %s severity %d out of range", m.Name, m.Severity)
		}
	}
}
