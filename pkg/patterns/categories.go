package patterns

// Pattern definitions, grouped by category. Severity is the risk score a
// single match contributes on the 0-100 scale used by the deep analysis
// stage; matches across categories accumulate.

func (r *Registry) registerObfuscationPatterns() {
	r.register(
		"ip_literal_host",
		`^https?://\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}`,
		CategoryObfuscation, 35,
		"Raw IP address instead of a hostname",
	)
	r.register(
		"ip_in_domain",
		`\d{1,3}-\d{1,3}-\d{1,3}-\d{1,3}`,
		CategoryObfuscation, 25,
		"Dashed IP embedded in the domain name",
	)
	r.register(
		"punycode_host",
		`^https?://xn--`,
		CategoryObfuscation, 20,
		"Punycode-encoded internationalized domain",
	)
	r.register(
		"hex_escape_run",
		`(%[0-9a-fA-F]{2}){4,}`,
		CategoryObfuscation, 25,
		"Long percent-encoded run hiding the path",
	)
	r.register(
		"userinfo_trick",
		`^https?://[^/@]+@`,
		CategoryObfuscation, 40,
		"Userinfo section disguising the real host",
	)
	r.register(
		"excessive_digits",
		`[a-z]\d{6,}[a-z.]`,
		CategoryObfuscation, 15,
		"Long digit run typical of generated domains",
	)
	r.register(
		"double_scheme",
		`^https?://.*https?(://|%3a%2f%2f)`,
		CategoryObfuscation, 30,
		"Second URL smuggled inside the first",
	)
}

func (r *Registry) registerImpersonationPatterns() {
	r.register(
		"brand_hyphen_host",
		`(paypal|amazon|google|apple|microsoft|netflix|facebook|instagram)-[a-z0-9]`,
		CategoryImpersonation, 30,
		"Brand name joined to extra tokens with a hyphen",
	)
	r.register(
		"brand_keyword_compound",
		`(secure|login|signin|verify|account|update|support)[.-]?(paypal|amazon|google|apple|microsoft|netflix|bank)`,
		CategoryImpersonation, 35,
		"Action keyword fused with a brand name",
	)
	r.register(
		"brand_subdomain",
		`^https?://(paypal|amazon|google|apple|microsoft|netflix)\.[a-z0-9-]+\.[a-z]{2,}`,
		CategoryImpersonation, 30,
		"Brand used as a subdomain of an unrelated host",
	)
	r.register(
		"digit_substitution",
		`(paypa1|g00gle|amaz0n|app1e|micr0soft|netf1ix|faceb00k)`,
		CategoryImpersonation, 45,
		"Digit-for-letter substitution in a brand name",
	)
}

func (r *Registry) registerHarvestPatterns() {
	r.register(
		"login_path",
		`/(login|signin|sign-in|logon|auth|authenticate)([/?.]|$)`,
		CategoryHarvest, 20,
		"Login or authentication path segment",
	)
	r.register(
		"verification_path",
		`/(verify|verification|confirm|validate|restore|recover|unlock)([/?.]|$)`,
		CategoryHarvest, 25,
		"Account verification path segment",
	)
	r.register(
		"sensitive_query",
		`[?&](password|passwd|pwd|pin|ssn|cvv|card(number)?)=`,
		CategoryHarvest, 45,
		"Credential or card data in the query string",
	)
	r.register(
		"session_in_query",
		`[?&](token|session|sessionid|auth)=[A-Za-z0-9+/=_-]{16,}`,
		CategoryHarvest, 20,
		"Session material exposed in the query string",
	)
	r.register(
		"webmail_harvest",
		`/(webmail|owa|outlook|office365?)[/.-].*(login|verify|auth)`,
		CategoryHarvest, 30,
		"Webmail portal impersonation path",
	)
}

func (r *Registry) registerRedirectPatterns() {
	r.register(
		"redirect_param",
		`[?&](redirect|redirect_url|redirect_uri|next|goto|dest|destination|continue)=https?`,
		CategoryRedirect, 25,
		"Absolute URL in a redirect parameter",
	)
	r.register(
		"encoded_redirect",
		`[?&](redirect|next|goto|url)=(%68%74%74%70|aHR0cH?M?6)`,
		CategoryRedirect, 35,
		"Encoded URL hidden in a redirect parameter",
	)
	r.register(
		"nested_url_param",
		`[?&][a-z_]+=https?(://|%3a%2f%2f)`,
		CategoryRedirect, 15,
		"Full URL passed as a query value",
	)
}

func (r *Registry) registerMalwarePatterns() {
	r.register(
		"executable_download",
		`\.(exe|scr|bat|cmd|msi|apk|jar|vbs|ps1)([?#]|$)`,
		CategoryMalware, 40,
		"Direct download of an executable payload",
	)
	r.register(
		"archive_double_extension",
		`\.(pdf|doc|docx|xls|xlsx|jpg|png)\.(exe|scr|zip|rar)([?#]|$)`,
		CategoryMalware, 50,
		"Document extension hiding an executable",
	)
	r.register(
		"raw_paste_payload",
		`(pastebin\.com/raw|paste\.ee/r|rentry\.co/[a-z0-9]+/raw)`,
		CategoryMalware, 25,
		"Payload served from a raw paste endpoint",
	)
}
