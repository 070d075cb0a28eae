package fakeapi

// DemoPassword is the password of every DemoUsers account.
const DemoPassword = "password123"

// DemoUsers returns a small population for local development. The first
// account is the one the README walks through.
func DemoUsers() []SeedUser {
	return []SeedUser{
		{Name: "Asha Verma", Email: "asha@example.com", Password: DemoPassword, Gender: "female", Age: 27, Location: "Pune", Bio: "Weekend trekker, weekday product manager.", Interests: []string{"travel", "music", "cooking"}},
		{Name: "Rohan Mehta", Email: "rohan@example.com", Password: DemoPassword, Gender: "male", Age: 29, Location: "Mumbai", Bio: "Software engineer who cooks on Sundays.", Interests: []string{"cooking", "cricket", "travel"}},
		{Name: "Kavya Nair", Email: "kavya@example.com", Password: DemoPassword, Gender: "female", Age: 25, Location: "Kochi", Bio: "Classical dancer and doctor.", Interests: []string{"dance", "reading"}},
		{Name: "Arjun Rao", Email: "arjun@example.com", Password: DemoPassword, Gender: "male", Age: 31, Location: "Bengaluru", Bio: "Runs marathons, reads history.", Interests: []string{"running", "reading", "travel"}},
		{Name: "Meera Iyer", Email: "meera@example.com", Password: DemoPassword, Gender: "female", Age: 30, Location: "Chennai", Bio: "Architect. Loves old buildings and filter coffee.", Interests: []string{"art", "music"}},
		{Name: "Vikram Singh", Email: "vikram@example.com", Password: DemoPassword, Gender: "male", Age: 34, Location: "Delhi", Bio: "Chartered accountant and amateur photographer.", Interests: []string{"photography", "travel"}},
	}
}
