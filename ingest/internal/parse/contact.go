package parse

import "regexp"

var (
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	// Australian numbers: 02 9876 5432, (02) 9876 5432, 0412 345 678, +61 2 9876 5432.
	phoneRe = regexp.MustCompile(`(?:\+61[\s-]?|\(0\d\)[\s-]?|0\d[\s-]?)\d(?:[\s-]?\d){6,8}`)
)

// ContactDetails pulls the first email address and phone number out of the
// candidate text. Either may be "".
func ContactDetails(text string) (email, phone string) {
	email = emailRe.FindString(text)
	phone = phoneRe.FindString(text)
	return email, phone
}
